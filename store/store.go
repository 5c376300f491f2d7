// Package store persists extraction results to SQLite: tasks, sites,
// periods, artifacts, images and their associations, template field
// mappings, and derived semantic triples.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Task status values. Tasks move pending -> running -> one of the
// terminal states; aborted is requested externally and observed at the
// next checkpoint.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusAborted   = "aborted"
)

// Task is a row of extraction_tasks.
type Task struct {
	ID              string `json:"task_id"`
	ReportName      string `json:"report_name"`
	ReportFolder    string `json:"report_folder_path"`
	PDFPath         string `json:"pdf_path,omitempty"`
	MarkdownPath    string `json:"markdown_path,omitempty"`
	LayoutPath      string `json:"layout_json_path,omitempty"`
	ContentListPath string `json:"content_list_json_path,omitempty"`
	ImagesDir       string `json:"images_folder_path,omitempty"`
	Status          string `json:"status"`
	Config          string `json:"extraction_config,omitempty"` // JSON
	Notes           string `json:"notes,omitempty"`
	TotalPottery    int    `json:"total_pottery"`
	TotalJade       int    `json:"total_jade"`
	TotalPeriods    int    `json:"total_periods"`
	TotalImages     int    `json:"total_images"`
	ErrorMessage    string `json:"error_message,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// TaskStats is the per-task entity tally written at completion.
type TaskStats struct {
	TotalPottery int `json:"total_pottery"`
	TotalJade    int `json:"total_jade"`
	TotalPeriods int `json:"total_periods"`
	TotalImages  int `json:"total_images"`
}

// LogEntry is a row of extraction_logs.
type LogEntry struct {
	ID        int64  `json:"id"`
	TaskID    string `json:"task_id"`
	Level     string `json:"log_level"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// Site is a row of sites.
type Site struct {
	ID                 int64   `json:"id"`
	TaskID             string  `json:"task_id"`
	Code               string  `json:"site_code,omitempty"`
	Name               string  `json:"site_name"`
	Alias              string  `json:"site_alias,omitempty"`
	Type               string  `json:"site_type,omitempty"`
	CurrentLocation    string  `json:"current_location,omitempty"`
	Coordinates        string  `json:"geographic_coordinates,omitempty"`
	Elevation          float64 `json:"elevation,omitempty"`
	TotalArea          float64 `json:"total_area,omitempty"`
	ExcavatedArea      float64 `json:"excavated_area,omitempty"`
	CultureName        string  `json:"culture_name,omitempty"`
	AbsoluteDating     string  `json:"absolute_dating,omitempty"`
	ProtectionLevel    string  `json:"protection_level,omitempty"`
	PreservationStatus string  `json:"preservation_status,omitempty"`
	SourceBlocks       []int   `json:"source_text_blocks,omitempty"`
	Confidence         float64 `json:"extraction_confidence"`
}

// Structure is a row of site_structures. ParentID is resolved in a
// second pass once all of a site's structures are inserted.
type Structure struct {
	ID           int64   `json:"id"`
	SiteID       int64   `json:"site_id"`
	ParentID     *int64  `json:"parent_id,omitempty"`
	Level        int     `json:"structure_level,omitempty"`
	Code         string  `json:"structure_code,omitempty"`
	Name         string  `json:"structure_name"`
	Type         string  `json:"structure_type,omitempty"`
	Position     string  `json:"relative_position,omitempty"`
	Coordinates  string  `json:"coordinates,omitempty"`
	Length       float64 `json:"length,omitempty"`
	Width        float64 `json:"width,omitempty"`
	Depth        float64 `json:"depth,omitempty"`
	Area         float64 `json:"area,omitempty"`
	Description  string  `json:"description,omitempty"`
	Features     string  `json:"features,omitempty"`
	SourceBlocks []int   `json:"source_text_blocks,omitempty"`
}

// Period is a row of periods.
type Period struct {
	ID              int64   `json:"id"`
	TaskID          string  `json:"task_id"`
	SiteID          int64   `json:"site_id"`
	Code            string  `json:"period_code,omitempty"`
	Name            string  `json:"period_name"`
	Alias           string  `json:"period_alias,omitempty"`
	TimeSpanStart   string  `json:"time_span_start,omitempty"`
	TimeSpanEnd     string  `json:"time_span_end,omitempty"`
	AbsoluteDating  string  `json:"absolute_dating,omitempty"`
	RelativeDating  string  `json:"relative_dating,omitempty"`
	Stage           string  `json:"development_stage,omitempty"`
	PhaseSequence   int     `json:"phase_sequence,omitempty"`
	Characteristics string  `json:"characteristics,omitempty"`
	Representative  string  `json:"representative_artifacts,omitempty"`
	SourceBlocks    []int   `json:"source_text_blocks,omitempty"`
	Confidence      float64 `json:"extraction_confidence"`
}

// Artifact is a row of pottery_artifacts or jade_artifacts. Template
// fields live in Attributes keyed by storage key; unmapped leftovers in
// Extra.
type Artifact struct {
	ID           int64          `json:"id"`
	TaskID       string         `json:"task_id"`
	SiteID       int64          `json:"site_id"`
	Code         string         `json:"artifact_code"`
	FoundInTomb  string         `json:"found_in_tomb,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
	SourceBlocks []int          `json:"source_text_blocks,omitempty"`
	ImageRefs    []string       `json:"image_references,omitempty"`
	Confidence   float64        `json:"extraction_confidence"`
}

// Image is a row of images.
type Image struct {
	ID          int64  `json:"id"`
	TaskID      string `json:"task_id"`
	Hash        string `json:"image_hash"`
	Path        string `json:"image_path"`
	Type        string `json:"image_type,omitempty"`
	PageIdx     int    `json:"page_idx"`
	BBox        string `json:"bbox,omitempty"`
	Caption     string `json:"caption,omitempty"`
	RelatedText string `json:"related_text,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// ImageLink is a row of artifact_images.
type ImageLink struct {
	ArtifactType string  `json:"artifact_type"`
	ArtifactID   int64   `json:"artifact_id"`
	ArtifactCode string  `json:"artifact_code,omitempty"`
	ImageID      int64   `json:"image_id"`
	Role         string  `json:"image_role,omitempty"`
	DisplayOrder int     `json:"display_order"`
	Description  string  `json:"description,omitempty"`
	Method       string  `json:"extraction_method"`
	Confidence   float64 `json:"confidence"`
}

// TemplateMapping is a row of sys_template_mappings.
type TemplateMapping struct {
	ID            int64  `json:"id"`
	ArtifactType  string `json:"artifact_type"`
	FieldNameCN   string `json:"field_name_cn"`
	FieldNameEN   string `json:"field_name_en,omitempty"`
	Description   string `json:"description,omitempty"`
	CIDOCEntity   string `json:"cidoc_entity,omitempty"`
	CIDOCProperty string `json:"cidoc_property,omitempty"`
	TargetClass   string `json:"target_class,omitempty"`
}

// FactTriple is a row of fact_artifact_triples.
type FactTriple struct {
	MappingID   int64   `json:"mapping_id"`
	Predicate   string  `json:"predicate,omitempty"`
	ObjectValue string  `json:"object_value"`
	Confidence  float64 `json:"confidence"`
}

// Store wraps the SQLite database for all relicdig persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema.
func New(dbPath string) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}

	// Run pending migrations.
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Task operations ---

// CreateTask registers a new extraction task in status pending.
func (s *Store) CreateTask(ctx context.Context, t Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO extraction_tasks (
			task_id, report_name, report_folder_path,
			pdf_path, markdown_path, layout_json_path,
			content_list_json_path, images_folder_path,
			status, extraction_config, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.ReportName, t.ReportFolder,
		nullStr(t.PDFPath), nullStr(t.MarkdownPath), nullStr(t.LayoutPath),
		nullStr(t.ContentListPath), nullStr(t.ImagesDir),
		StatusPending, nullStr(t.Config), t.Notes)
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID string) (*Task, error) {
	t := &Task{}
	var pdf, md, layout, contentList, images, config, notes, errMsg sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT task_id, report_name, report_folder_path, pdf_path, markdown_path,
		       layout_json_path, content_list_json_path, images_folder_path,
		       status, extraction_config, notes,
		       total_pottery, total_jade, total_periods, total_images,
		       error_message, created_at, updated_at
		FROM extraction_tasks WHERE task_id = ?
	`, taskID).Scan(&t.ID, &t.ReportName, &t.ReportFolder, &pdf, &md,
		&layout, &contentList, &images,
		&t.Status, &config, &notes,
		&t.TotalPottery, &t.TotalJade, &t.TotalPeriods, &t.TotalImages,
		&errMsg, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.PDFPath = pdf.String
	t.MarkdownPath = md.String
	t.LayoutPath = layout.String
	t.ContentListPath = contentList.String
	t.ImagesDir = images.String
	t.Config = config.String
	t.Notes = notes.String
	t.ErrorMessage = errMsg.String
	return t, nil
}

// TaskStatus reads only the status flag; the cancellation checkpoint.
func (s *Store) TaskStatus(ctx context.Context, taskID string) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		"SELECT status FROM extraction_tasks WHERE task_id = ?", taskID).Scan(&status)
	if err != nil {
		return "", err
	}
	return status, nil
}

// UpdateTaskStatus moves a task to a new status.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE extraction_tasks
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE task_id = ?
	`, status, taskID)
	return err
}

// SetTaskError records the failure cause alongside the status change.
func (s *Store) SetTaskError(ctx context.Context, taskID, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE extraction_tasks
		SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE task_id = ?
	`, StatusFailed, message, taskID)
	return err
}

// UpdateTaskStatistics writes the final entity tally.
func (s *Store) UpdateTaskStatistics(ctx context.Context, taskID string, stats TaskStats) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE extraction_tasks
		SET total_pottery = ?, total_jade = ?, total_periods = ?, total_images = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE task_id = ?
	`, stats.TotalPottery, stats.TotalJade, stats.TotalPeriods, stats.TotalImages, taskID)
	return err
}

// ListTasks returns all tasks, newest first.
func (s *Store) ListTasks(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, report_name, report_folder_path, status,
		       total_pottery, total_jade, total_periods, total_images,
		       created_at, updated_at
		FROM extraction_tasks ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.ReportName, &t.ReportFolder, &t.Status,
			&t.TotalPottery, &t.TotalJade, &t.TotalPeriods, &t.TotalImages,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// AddLog appends one progress entry for a task.
func (s *Store) AddLog(ctx context.Context, taskID, level, message string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO extraction_logs (task_id, log_level, message) VALUES (?, ?, ?)
	`, taskID, level, message)
	return err
}

// LogsByTask returns a task's log entries in insertion order.
func (s *Store) LogsByTask(ctx context.Context, taskID string) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, log_level, message, created_at
		FROM extraction_logs WHERE task_id = ? ORDER BY id
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Level, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Site operations ---

// InsertSite inserts a new site and returns its ID.
func (s *Store) InsertSite(ctx context.Context, site Site) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sites (
			task_id, site_code, site_name, site_alias, site_type,
			current_location, geographic_coordinates, elevation,
			total_area, excavated_area, culture_name, absolute_dating,
			protection_level, preservation_status,
			source_text_blocks, extraction_confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, nullStr(site.TaskID), nullStr(site.Code), site.Name, nullStr(site.Alias), nullStr(site.Type),
		nullStr(site.CurrentLocation), nullStr(site.Coordinates), nullFloat(site.Elevation),
		nullFloat(site.TotalArea), nullFloat(site.ExcavatedArea), nullStr(site.CultureName),
		nullStr(site.AbsoluteDating), nullStr(site.ProtectionLevel), nullStr(site.PreservationStatus),
		marshalInts(site.SourceBlocks), site.Confidence)
	if err != nil {
		return 0, fmt.Errorf("inserting site: %w", err)
	}
	return res.LastInsertId()
}

// UpdateSite overwrites a site's descriptive fields. Name and identity
// are left alone.
func (s *Store) UpdateSite(ctx context.Context, siteID int64, site Site) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sites SET
			site_code = COALESCE(?, site_code),
			site_alias = COALESCE(?, site_alias),
			site_type = COALESCE(?, site_type),
			current_location = COALESCE(?, current_location),
			geographic_coordinates = COALESCE(?, geographic_coordinates),
			elevation = COALESCE(?, elevation),
			total_area = COALESCE(?, total_area),
			excavated_area = COALESCE(?, excavated_area),
			culture_name = COALESCE(?, culture_name),
			absolute_dating = COALESCE(?, absolute_dating),
			protection_level = COALESCE(?, protection_level),
			preservation_status = COALESCE(?, preservation_status),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, nullStr(site.Code), nullStr(site.Alias), nullStr(site.Type),
		nullStr(site.CurrentLocation), nullStr(site.Coordinates), nullFloat(site.Elevation),
		nullFloat(site.TotalArea), nullFloat(site.ExcavatedArea), nullStr(site.CultureName),
		nullStr(site.AbsoluteDating), nullStr(site.ProtectionLevel), nullStr(site.PreservationStatus),
		siteID)
	return err
}

// FindOrCreateSiteByName resolves a site identity inside one
// transaction: exact name first, then substring containment either
// way, then insert. Returns the site ID and whether it was created.
func (s *Store) FindOrCreateSiteByName(ctx context.Context, site Site) (int64, bool, error) {
	var id int64
	created := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM sites WHERE site_name = ?", site.Name).Scan(&id)
		if err == nil {
			return nil
		}
		if err != sql.ErrNoRows {
			return err
		}

		// Substring match catches "良渚" vs "良渚遗址" style variance.
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM sites
			WHERE instr(site_name, ?) > 0 OR instr(?, site_name) > 0
			ORDER BY id LIMIT 1
		`, site.Name, site.Name).Scan(&id)
		if err == nil {
			return nil
		}
		if err != sql.ErrNoRows {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO sites (
				task_id, site_code, site_name, site_alias, site_type,
				current_location, geographic_coordinates, elevation,
				total_area, excavated_area, culture_name, absolute_dating,
				protection_level, preservation_status,
				source_text_blocks, extraction_confidence
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, nullStr(site.TaskID), nullStr(site.Code), site.Name, nullStr(site.Alias), nullStr(site.Type),
			nullStr(site.CurrentLocation), nullStr(site.Coordinates), nullFloat(site.Elevation),
			nullFloat(site.TotalArea), nullFloat(site.ExcavatedArea), nullStr(site.CultureName),
			nullStr(site.AbsoluteDating), nullStr(site.ProtectionLevel), nullStr(site.PreservationStatus),
			marshalInts(site.SourceBlocks), site.Confidence)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		created = true
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("resolving site %q: %w", site.Name, err)
	}
	return id, created, nil
}

// GetSiteByName retrieves a site by exact name.
func (s *Store) GetSiteByName(ctx context.Context, name string) (*Site, error) {
	return s.scanSite(s.db.QueryRowContext(ctx,
		siteSelect+" WHERE site_name = ?", name))
}

// GetSiteByTask retrieves the site a task extracted.
func (s *Store) GetSiteByTask(ctx context.Context, taskID string) (*Site, error) {
	return s.scanSite(s.db.QueryRowContext(ctx,
		siteSelect+" WHERE task_id = ?", taskID))
}

// GetSiteByReportFolder finds the site produced by an earlier run over
// the same report folder, used for incremental re-extraction.
func (s *Store) GetSiteByReportFolder(ctx context.Context, folder string) (*Site, error) {
	return s.scanSite(s.db.QueryRowContext(ctx, `
		SELECT s.id, s.task_id, s.site_code, s.site_name, s.site_alias, s.site_type,
		       s.current_location, s.geographic_coordinates, s.elevation,
		       s.total_area, s.excavated_area, s.culture_name, s.absolute_dating,
		       s.protection_level, s.preservation_status, s.source_text_blocks,
		       s.extraction_confidence
		FROM sites s
		JOIN extraction_tasks t ON s.task_id = t.task_id
		WHERE t.report_folder_path = ?
		ORDER BY s.id DESC LIMIT 1
	`, folder))
}

const siteSelect = `
	SELECT id, task_id, site_code, site_name, site_alias, site_type,
	       current_location, geographic_coordinates, elevation,
	       total_area, excavated_area, culture_name, absolute_dating,
	       protection_level, preservation_status, source_text_blocks,
	       extraction_confidence
	FROM sites`

func (s *Store) scanSite(row *sql.Row) (*Site, error) {
	site := &Site{}
	var taskID, code, alias, typ, loc, coords, culture, dating, protection, preservation, blocks sql.NullString
	var elevation, totalArea, excavated sql.NullFloat64
	err := row.Scan(&site.ID, &taskID, &code, &site.Name, &alias, &typ,
		&loc, &coords, &elevation, &totalArea, &excavated,
		&culture, &dating, &protection, &preservation, &blocks, &site.Confidence)
	if err != nil {
		return nil, err
	}
	site.TaskID = taskID.String
	site.Code = code.String
	site.Alias = alias.String
	site.Type = typ.String
	site.CurrentLocation = loc.String
	site.Coordinates = coords.String
	site.Elevation = elevation.Float64
	site.TotalArea = totalArea.Float64
	site.ExcavatedArea = excavated.Float64
	site.CultureName = culture.String
	site.AbsoluteDating = dating.String
	site.ProtectionLevel = protection.String
	site.PreservationStatus = preservation.String
	site.SourceBlocks = unmarshalInts(blocks.String)
	return site, nil
}

// --- Structure operations ---

// InsertStructure inserts a site sub-unit and returns its ID.
func (s *Store) InsertStructure(ctx context.Context, st Structure) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO site_structures (
			site_id, parent_id, structure_level, structure_code,
			structure_name, structure_type, relative_position,
			coordinates, length, width, depth, area,
			description, features, source_text_blocks
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, st.SiteID, st.ParentID, nullInt(st.Level), nullStr(st.Code),
		st.Name, nullStr(st.Type), nullStr(st.Position),
		nullStr(st.Coordinates), nullFloat(st.Length), nullFloat(st.Width),
		nullFloat(st.Depth), nullFloat(st.Area),
		nullStr(st.Description), nullStr(st.Features), marshalInts(st.SourceBlocks))
	if err != nil {
		return 0, fmt.Errorf("inserting structure: %w", err)
	}
	return res.LastInsertId()
}

// SetStructureParent resolves a deferred parent link.
func (s *Store) SetStructureParent(ctx context.Context, structureID, parentID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE site_structures SET parent_id = ? WHERE id = ?", parentID, structureID)
	return err
}

// StructuresBySite returns a site's structures in insertion order.
func (s *Store) StructuresBySite(ctx context.Context, siteID int64) ([]Structure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, site_id, parent_id, structure_level, structure_code,
		       structure_name, structure_type, relative_position, coordinates,
		       length, width, depth, area, description, features, source_text_blocks
		FROM site_structures WHERE site_id = ? ORDER BY id
	`, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var structures []Structure
	for rows.Next() {
		var st Structure
		var parent sql.NullInt64
		var level sql.NullInt64
		var code, name, typ, pos, coords, desc, features, blocks sql.NullString
		var length, width, depth, area sql.NullFloat64
		if err := rows.Scan(&st.ID, &st.SiteID, &parent, &level, &code,
			&name, &typ, &pos, &coords,
			&length, &width, &depth, &area, &desc, &features, &blocks); err != nil {
			return nil, err
		}
		if parent.Valid {
			st.ParentID = &parent.Int64
		}
		st.Level = int(level.Int64)
		st.Code = code.String
		st.Name = name.String
		st.Type = typ.String
		st.Position = pos.String
		st.Coordinates = coords.String
		st.Length = length.Float64
		st.Width = width.Float64
		st.Depth = depth.Float64
		st.Area = area.Float64
		st.Description = desc.String
		st.Features = features.String
		st.SourceBlocks = unmarshalInts(blocks.String)
		structures = append(structures, st)
	}
	return structures, rows.Err()
}

// StructureIDByName finds one of a site's structures by name or code.
func (s *Store) StructureIDByName(ctx context.Context, siteID int64, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM site_structures
		WHERE site_id = ? AND (structure_name = ? OR structure_code = ?)
		LIMIT 1
	`, siteID, name, name).Scan(&id)
	return id, err
}

// --- Period operations ---

// InsertPeriod inserts a period and returns its ID.
func (s *Store) InsertPeriod(ctx context.Context, p Period) (int64, error) {
	name := p.Name
	if name == "" {
		name = "未命名时期"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO periods (
			task_id, site_id, period_code, period_name, period_alias,
			time_span_start, time_span_end, absolute_dating, relative_dating,
			development_stage, phase_sequence, characteristics,
			representative_artifacts, source_text_blocks, extraction_confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, nullStr(p.TaskID), p.SiteID, nullStr(p.Code), name, nullStr(p.Alias),
		nullStr(p.TimeSpanStart), nullStr(p.TimeSpanEnd), nullStr(p.AbsoluteDating),
		nullStr(p.RelativeDating), nullStr(p.Stage), nullInt(p.PhaseSequence),
		nullStr(p.Characteristics), nullStr(p.Representative),
		marshalInts(p.SourceBlocks), p.Confidence)
	if err != nil {
		return 0, fmt.Errorf("inserting period: %w", err)
	}
	return res.LastInsertId()
}

// PeriodsBySite returns a site's periods in phase order.
func (s *Store) PeriodsBySite(ctx context.Context, siteID int64) ([]Period, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, site_id, period_code, period_name, period_alias,
		       time_span_start, time_span_end, absolute_dating, relative_dating,
		       development_stage, phase_sequence, characteristics,
		       representative_artifacts, source_text_blocks, extraction_confidence
		FROM periods WHERE site_id = ?
		ORDER BY COALESCE(phase_sequence, id)
	`, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []Period
	for rows.Next() {
		var p Period
		var taskID, code, alias, start, end, abs, rel, stage, chars, rep, blocks sql.NullString
		var phase sql.NullInt64
		if err := rows.Scan(&p.ID, &taskID, &p.SiteID, &code, &p.Name, &alias,
			&start, &end, &abs, &rel, &stage, &phase, &chars, &rep, &blocks,
			&p.Confidence); err != nil {
			return nil, err
		}
		p.TaskID = taskID.String
		p.Code = code.String
		p.Alias = alias.String
		p.TimeSpanStart = start.String
		p.TimeSpanEnd = end.String
		p.AbsoluteDating = abs.String
		p.RelativeDating = rel.String
		p.Stage = stage.String
		p.PhaseSequence = int(phase.Int64)
		p.Characteristics = chars.String
		p.Representative = rep.String
		p.SourceBlocks = unmarshalInts(blocks.String)
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// --- Artifact operations ---

// Artifact table names keyed by kind.
const (
	ArtifactPottery = "pottery"
	ArtifactJade    = "jade"
)

func artifactTable(artifactType string) (string, error) {
	switch artifactType {
	case ArtifactPottery:
		return "pottery_artifacts", nil
	case ArtifactJade:
		return "jade_artifacts", nil
	default:
		return "", fmt.Errorf("unknown artifact type %q", artifactType)
	}
}

// UpsertArtifact inserts or updates an artifact keyed on
// (site_id, artifact_code) and returns its ID. Artifacts missing
// either key half are plainly inserted with NULLs, so repeated
// codeless finds on one site never collide on the UNIQUE.
func (s *Store) UpsertArtifact(ctx context.Context, artifactType string, a Artifact) (int64, error) {
	table, err := artifactTable(artifactType)
	if err != nil {
		return 0, err
	}

	if a.Code == "" || a.SiteID == 0 {
		res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (
				task_id, site_id, artifact_code, found_in_tomb, attributes, extra,
				source_text_blocks, image_references, extraction_confidence
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, table), nullStr(a.TaskID), nullInt64(a.SiteID), nullStr(a.Code),
			nullStr(a.FoundInTomb), marshalMap(a.Attributes), marshalMap(a.Extra),
			marshalInts(a.SourceBlocks), marshalStrings(a.ImageRefs), a.Confidence)
		if err != nil {
			return 0, fmt.Errorf("inserting %s artifact: %w", artifactType, err)
		}
		return res.LastInsertId()
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			task_id, site_id, artifact_code, found_in_tomb, attributes, extra,
			source_text_blocks, image_references, extraction_confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(site_id, artifact_code) DO UPDATE SET
			task_id = excluded.task_id,
			found_in_tomb = COALESCE(excluded.found_in_tomb, found_in_tomb),
			attributes = excluded.attributes,
			extra = excluded.extra,
			source_text_blocks = excluded.source_text_blocks,
			image_references = excluded.image_references,
			extraction_confidence = excluded.extraction_confidence,
			updated_at = CURRENT_TIMESTAMP
	`, table), nullStr(a.TaskID), a.SiteID, a.Code, nullStr(a.FoundInTomb),
		marshalMap(a.Attributes), marshalMap(a.Extra),
		marshalInts(a.SourceBlocks), marshalStrings(a.ImageRefs), a.Confidence)
	if err != nil {
		return 0, fmt.Errorf("upserting %s artifact: %w", artifactType, err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT id FROM %s WHERE site_id = ? AND artifact_code = ?", table),
		a.SiteID, a.Code).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("resolving %s artifact id: %w", artifactType, err)
	}
	return id, nil
}

// ArtifactsByTask returns one kind of artifact extracted by a task.
func (s *Store) ArtifactsByTask(ctx context.Context, artifactType, taskID string) ([]Artifact, error) {
	table, err := artifactTable(artifactType)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, task_id, site_id, artifact_code, found_in_tomb,
		       attributes, extra, source_text_blocks, image_references,
		       extraction_confidence
		FROM %s WHERE task_id = ? ORDER BY artifact_code
	`, table), taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArtifacts(rows)
}

// ArtifactsBySite returns one kind of artifact for a site.
func (s *Store) ArtifactsBySite(ctx context.Context, artifactType string, siteID int64) ([]Artifact, error) {
	table, err := artifactTable(artifactType)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, task_id, site_id, artifact_code, found_in_tomb,
		       attributes, extra, source_text_blocks, image_references,
		       extraction_confidence
		FROM %s WHERE site_id = ? ORDER BY artifact_code
	`, table), siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArtifacts(rows)
}

func scanArtifacts(rows *sql.Rows) ([]Artifact, error) {
	var artifacts []Artifact
	for rows.Next() {
		var a Artifact
		var siteID sql.NullInt64
		var taskID, code, tomb, attrs, extra, blocks, refs sql.NullString
		if err := rows.Scan(&a.ID, &taskID, &siteID, &code, &tomb,
			&attrs, &extra, &blocks, &refs, &a.Confidence); err != nil {
			return nil, err
		}
		a.TaskID = taskID.String
		a.SiteID = siteID.Int64
		a.Code = code.String
		a.FoundInTomb = tomb.String
		a.Attributes = unmarshalMap(attrs.String)
		a.Extra = unmarshalMap(extra.String)
		a.SourceBlocks = unmarshalInts(blocks.String)
		a.ImageRefs = unmarshalStrings(refs.String)
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// --- Image operations ---

// InsertImage records a report figure; duplicates on
// (task_id, image_hash) are ignored. Returns the row ID.
func (s *Store) InsertImage(ctx context.Context, img Image) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO images (
			task_id, image_hash, image_path, image_type, page_idx, bbox,
			caption, related_text, file_size, width, height
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, img.TaskID, img.Hash, img.Path, nullStr(img.Type), img.PageIdx,
		nullStr(img.BBox), nullStr(img.Caption), nullStr(img.RelatedText),
		img.FileSize, nullInt(img.Width), nullInt(img.Height))
	if err != nil {
		return 0, fmt.Errorf("inserting image: %w", err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		"SELECT id FROM images WHERE task_id = ? AND image_hash = ?",
		img.TaskID, img.Hash).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ImageIDByHash resolves an image row by its content hash.
func (s *Store) ImageIDByHash(ctx context.Context, taskID, hash string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM images WHERE task_id = ? AND image_hash = ?",
		taskID, hash).Scan(&id)
	return id, err
}

// ImagesByTask returns a task's images in page order.
func (s *Store) ImagesByTask(ctx context.Context, taskID string) ([]Image, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, image_hash, image_path, image_type, page_idx,
		       bbox, caption, related_text, file_size, width, height
		FROM images WHERE task_id = ? ORDER BY page_idx
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []Image
	for rows.Next() {
		var img Image
		var typ, bbox, caption, related sql.NullString
		var size sql.NullInt64
		var width, height sql.NullInt64
		if err := rows.Scan(&img.ID, &img.TaskID, &img.Hash, &img.Path, &typ,
			&img.PageIdx, &bbox, &caption, &related, &size, &width, &height); err != nil {
			return nil, err
		}
		img.Type = typ.String
		img.BBox = bbox.String
		img.Caption = caption.String
		img.RelatedText = related.String
		img.FileSize = size.Int64
		img.Width = int(width.Int64)
		img.Height = int(height.Int64)
		images = append(images, img)
	}
	return images, rows.Err()
}

// LinkArtifactImage records an artifact-to-image association; a
// re-link of the same pair replaces the prior evidence.
func (s *Store) LinkArtifactImage(ctx context.Context, link ImageLink) error {
	method := link.Method
	if method == "" {
		method = "auto"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO artifact_images (
			artifact_type, artifact_id, artifact_code, image_id,
			image_role, display_order, description, extraction_method, confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, link.ArtifactType, link.ArtifactID, nullStr(link.ArtifactCode), link.ImageID,
		nullStr(link.Role), link.DisplayOrder, nullStr(link.Description),
		method, link.Confidence)
	return err
}

// ArtifactImages returns an artifact's linked images in display order.
func (s *Store) ArtifactImages(ctx context.Context, artifactType string, artifactID int64) ([]ImageLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT artifact_type, artifact_id, artifact_code, image_id,
		       image_role, display_order, description, extraction_method, confidence
		FROM artifact_images
		WHERE artifact_type = ? AND artifact_id = ?
		ORDER BY display_order
	`, artifactType, artifactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []ImageLink
	for rows.Next() {
		var l ImageLink
		var code, role, desc sql.NullString
		if err := rows.Scan(&l.ArtifactType, &l.ArtifactID, &code, &l.ImageID,
			&role, &l.DisplayOrder, &desc, &l.Method, &l.Confidence); err != nil {
			return nil, err
		}
		l.ArtifactCode = code.String
		l.Role = role.String
		l.Description = desc.String
		links = append(links, l)
	}
	return links, rows.Err()
}

// LinkArtifactPeriod associates an artifact with a period.
func (s *Store) LinkArtifactPeriod(ctx context.Context, artifactType string, artifactID, periodID int64, confidence float64, evidence string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO artifact_period_mapping (
			artifact_type, artifact_id, period_id, confidence, evidence
		) VALUES (?, ?, ?, ?, ?)
	`, artifactType, artifactID, periodID, confidence, evidence)
	return err
}

// LinkArtifactLocation associates an artifact with a site structure.
func (s *Store) LinkArtifactLocation(ctx context.Context, artifactType string, artifactID, structureID int64, locationType, description string) error {
	if locationType == "" {
		locationType = "excavation"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO artifact_location_mapping (
			artifact_type, artifact_id, structure_id, location_type, description
		) VALUES (?, ?, ?, ?, ?)
	`, artifactType, artifactID, structureID, locationType, description)
	return err
}

// --- Template mapping operations ---

// RegisterTemplateMappings upserts field mapping definitions keyed on
// (artifact_type, field_name_cn); existing IDs are preserved.
func (s *Store) RegisterTemplateMappings(ctx context.Context, mappings []TemplateMapping) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, m := range mappings {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO sys_template_mappings (
					artifact_type, field_name_cn, field_name_en,
					description, cidoc_entity, cidoc_property, target_class
				) VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(artifact_type, field_name_cn) DO UPDATE SET
					field_name_en = excluded.field_name_en,
					description = excluded.description,
					cidoc_entity = excluded.cidoc_entity,
					cidoc_property = excluded.cidoc_property,
					target_class = excluded.target_class
			`, m.ArtifactType, m.FieldNameCN, nullStr(m.FieldNameEN),
				nullStr(m.Description), nullStr(m.CIDOCEntity),
				nullStr(m.CIDOCProperty), nullStr(m.TargetClass)); err != nil {
				return fmt.Errorf("registering mapping %s/%s: %w", m.ArtifactType, m.FieldNameCN, err)
			}
		}
		return nil
	})
}

// TemplateMappings returns one kind's mapping definitions.
func (s *Store) TemplateMappings(ctx context.Context, artifactType string) ([]TemplateMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, artifact_type, field_name_cn, field_name_en,
		       description, cidoc_entity, cidoc_property, target_class
		FROM sys_template_mappings WHERE artifact_type = ? ORDER BY id
	`, artifactType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []TemplateMapping
	for rows.Next() {
		var m TemplateMapping
		var en, desc, entity, prop, class sql.NullString
		if err := rows.Scan(&m.ID, &m.ArtifactType, &m.FieldNameCN, &en,
			&desc, &entity, &prop, &class); err != nil {
			return nil, err
		}
		m.FieldNameEN = en.String
		m.Description = desc.String
		m.CIDOCEntity = entity.String
		m.CIDOCProperty = prop.String
		m.TargetClass = class.String
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// TemplateMappingIDs returns field_name_cn -> mapping id for one kind.
func (s *Store) TemplateMappingIDs(ctx context.Context, artifactType string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT field_name_cn, id FROM sys_template_mappings WHERE artifact_type = ?
	`, artifactType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]int64)
	for rows.Next() {
		var name string
		var id int64
		if err := rows.Scan(&name, &id); err != nil {
			return nil, err
		}
		ids[name] = id
	}
	return ids, rows.Err()
}

// --- Fact triple operations ---

// ReplaceTriples swaps an artifact's semantic triples in one
// transaction: prior rows are deleted, then the new set inserted.
// Re-running an extraction therefore never accumulates stale facts.
func (s *Store) ReplaceTriples(ctx context.Context, artifactType string, artifactID int64, triples []FactTriple) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM fact_artifact_triples
			WHERE artifact_type = ? AND artifact_id = ?
		`, artifactType, artifactID); err != nil {
			return err
		}
		for _, t := range triples {
			confidence := t.Confidence
			if confidence == 0 {
				confidence = 1.0
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO fact_artifact_triples (
					artifact_type, artifact_id, mapping_id, predicate, object_value, confidence
				) VALUES (?, ?, ?, ?, ?, ?)
			`, artifactType, artifactID, t.MappingID,
				nullStr(t.Predicate), t.ObjectValue, confidence); err != nil {
				return err
			}
		}
		return nil
	})
}

// TriplesByArtifact returns an artifact's semantic triples.
func (s *Store) TriplesByArtifact(ctx context.Context, artifactType string, artifactID int64) ([]FactTriple, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mapping_id, predicate, object_value, confidence
		FROM fact_artifact_triples
		WHERE artifact_type = ? AND artifact_id = ?
		ORDER BY id
	`, artifactType, artifactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triples []FactTriple
	for rows.Next() {
		var t FactTriple
		var predicate sql.NullString
		if err := rows.Scan(&t.MappingID, &predicate, &t.ObjectValue, &t.Confidence); err != nil {
			return nil, err
		}
		t.Predicate = predicate.String
		triples = append(triples, t)
	}
	return triples, rows.Err()
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullStr(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullFloat(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullInt64(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

func marshalMap(m map[string]any) any {
	if len(m) == 0 {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return string(data)
}

func unmarshalMap(s string) map[string]any {
	if s == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

func marshalInts(v []int) any {
	if len(v) == 0 {
		return nil
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func unmarshalInts(s string) []int {
	if s == "" {
		return nil
	}
	var v []int
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}

func marshalStrings(v []string) any {
	if len(v) == 0 {
		return nil
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func unmarshalStrings(s string) []string {
	if s == "" {
		return nil
	}
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}
