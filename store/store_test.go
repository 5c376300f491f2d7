//go:build cgo

package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.DB() == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	dbPath := filepath.Join(dir, "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

func sampleTask(id string) Task {
	return Task{
		ID:           id,
		ReportName:   "瑶山发掘报告",
		ReportFolder: "/data/reports/yaoshan",
		MarkdownPath: "/data/reports/yaoshan/full.md",
		Config:       `{"model":"gemini-2.0-flash"}`,
	}
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateTask(ctx, sampleTask("task-1")); err != nil {
		t.Fatalf("creating task: %v", err)
	}

	got, err := s.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("getting task: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("new task status = %q", got.Status)
	}
	if got.ReportName != "瑶山发掘报告" || got.MarkdownPath == "" {
		t.Errorf("task round-trip = %+v", got)
	}

	if err := s.UpdateTaskStatus(ctx, "task-1", StatusRunning); err != nil {
		t.Fatalf("updating status: %v", err)
	}
	status, err := s.TaskStatus(ctx, "task-1")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusRunning {
		t.Errorf("status = %q", status)
	}

	stats := TaskStats{TotalPottery: 12, TotalJade: 5, TotalPeriods: 3, TotalImages: 40}
	if err := s.UpdateTaskStatistics(ctx, "task-1", stats); err != nil {
		t.Fatalf("updating statistics: %v", err)
	}
	if err := s.UpdateTaskStatus(ctx, "task-1", StatusCompleted); err != nil {
		t.Fatal(err)
	}

	got, err = s.GetTask(ctx, "task-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalPottery != 12 || got.TotalJade != 5 || got.Status != StatusCompleted {
		t.Errorf("final task = %+v", got)
	}
}

func TestSetTaskError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateTask(ctx, sampleTask("task-err")); err != nil {
		t.Fatal(err)
	}
	if err := s.SetTaskError(ctx, "task-err", "provider unreachable"); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetTask(ctx, "task-err")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusFailed || got.ErrorMessage != "provider unreachable" {
		t.Errorf("task = %+v", got)
	}
}

func TestListTasksNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := s.CreateTask(ctx, sampleTask(id)); err != nil {
			t.Fatal(err)
		}
	}
	tasks, err := s.ListTasks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
}

func TestLogs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateTask(ctx, sampleTask("task-log")); err != nil {
		t.Fatal(err)
	}
	for _, msg := range []string{"started", "site extracted", "done"} {
		if err := s.AddLog(ctx, "task-log", "info", msg); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := s.LogsByTask(ctx, "task-log")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 || entries[0].Message != "started" || entries[2].Message != "done" {
		t.Errorf("logs = %+v", entries)
	}
}

// ---------------------------------------------------------------------------
// Sites
// ---------------------------------------------------------------------------

func TestInsertAndGetSite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateTask(ctx, sampleTask("task-site")); err != nil {
		t.Fatal(err)
	}
	id, err := s.InsertSite(ctx, Site{
		TaskID:       "task-site",
		Name:         "瑶山遗址",
		CultureName:  "良渚文化",
		TotalArea:    4000,
		SourceBlocks: []int{0, 1},
		Confidence:   0.9,
	})
	if err != nil {
		t.Fatalf("inserting site: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero site id")
	}

	got, err := s.GetSiteByName(ctx, "瑶山遗址")
	if err != nil {
		t.Fatal(err)
	}
	if got.CultureName != "良渚文化" || got.TotalArea != 4000 {
		t.Errorf("site = %+v", got)
	}
	if len(got.SourceBlocks) != 2 {
		t.Errorf("source blocks = %v", got.SourceBlocks)
	}

	byTask, err := s.GetSiteByTask(ctx, "task-site")
	if err != nil {
		t.Fatal(err)
	}
	if byTask.ID != id {
		t.Errorf("by-task id = %d, want %d", byTask.ID, id)
	}

	byFolder, err := s.GetSiteByReportFolder(ctx, "/data/reports/yaoshan")
	if err != nil {
		t.Fatal(err)
	}
	if byFolder.ID != id {
		t.Errorf("by-folder id = %d, want %d", byFolder.ID, id)
	}
}

func TestFindOrCreateSiteByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, created, err := s.FindOrCreateSiteByName(ctx, Site{Name: "良渚古城遗址"})
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("first resolution should create")
	}

	// Exact name.
	id2, created, err := s.FindOrCreateSiteByName(ctx, Site{Name: "良渚古城遗址"})
	if err != nil {
		t.Fatal(err)
	}
	if created || id2 != id1 {
		t.Errorf("exact match: id=%d created=%v", id2, created)
	}

	// Substring containment either direction.
	id3, created, err := s.FindOrCreateSiteByName(ctx, Site{Name: "良渚古城"})
	if err != nil {
		t.Fatal(err)
	}
	if created || id3 != id1 {
		t.Errorf("substring match: id=%d created=%v", id3, created)
	}
}

func TestUpdateSiteKeepsExistingOnEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertSite(ctx, Site{Name: "反山遗址", CultureName: "良渚文化"})
	if err != nil {
		t.Fatal(err)
	}
	// Empty fields must not erase stored values.
	if err := s.UpdateSite(ctx, id, Site{Type: "墓地"}); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetSiteByName(ctx, "反山遗址")
	if err != nil {
		t.Fatal(err)
	}
	if got.CultureName != "良渚文化" || got.Type != "墓地" {
		t.Errorf("site = %+v", got)
	}
}

// ---------------------------------------------------------------------------
// Structures and periods
// ---------------------------------------------------------------------------

func TestStructuresWithParentResolution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	siteID, err := s.InsertSite(ctx, Site{Name: "瑶山"})
	if err != nil {
		t.Fatal(err)
	}

	altarID, err := s.InsertStructure(ctx, Structure{SiteID: siteID, Name: "祭坛", Level: 1})
	if err != nil {
		t.Fatal(err)
	}
	tombID, err := s.InsertStructure(ctx, Structure{SiteID: siteID, Name: "M12", Code: "M12", Level: 2})
	if err != nil {
		t.Fatal(err)
	}

	// Second pass: resolve the hierarchy after all rows exist.
	if err := s.SetStructureParent(ctx, tombID, altarID); err != nil {
		t.Fatal(err)
	}

	structures, err := s.StructuresBySite(ctx, siteID)
	if err != nil {
		t.Fatal(err)
	}
	if len(structures) != 2 {
		t.Fatalf("expected 2 structures, got %d", len(structures))
	}
	if structures[1].ParentID == nil || *structures[1].ParentID != altarID {
		t.Errorf("tomb parent = %v", structures[1].ParentID)
	}

	id, err := s.StructureIDByName(ctx, siteID, "M12")
	if err != nil {
		t.Fatal(err)
	}
	if id != tombID {
		t.Errorf("lookup by code = %d, want %d", id, tombID)
	}
}

func TestPeriodsOrderedByPhase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	siteID, err := s.InsertSite(ctx, Site{Name: "卞家山"})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []Period{
		{SiteID: siteID, Name: "晚期", PhaseSequence: 3},
		{SiteID: siteID, Name: "早期", PhaseSequence: 1},
		{SiteID: siteID, Name: "中期", PhaseSequence: 2},
	} {
		if _, err := s.InsertPeriod(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	periods, err := s.PeriodsBySite(ctx, siteID)
	if err != nil {
		t.Fatal(err)
	}
	if len(periods) != 3 {
		t.Fatalf("expected 3 periods, got %d", len(periods))
	}
	if periods[0].Name != "早期" || periods[2].Name != "晚期" {
		t.Errorf("order = %s, %s, %s", periods[0].Name, periods[1].Name, periods[2].Name)
	}
}

func TestInsertPeriodDefaultsName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	siteID, err := s.InsertSite(ctx, Site{Name: "某遗址"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertPeriod(ctx, Period{SiteID: siteID}); err != nil {
		t.Fatal(err)
	}
	periods, err := s.PeriodsBySite(ctx, siteID)
	if err != nil {
		t.Fatal(err)
	}
	if periods[0].Name != "未命名时期" {
		t.Errorf("default name = %q", periods[0].Name)
	}
}

// ---------------------------------------------------------------------------
// Artifacts
// ---------------------------------------------------------------------------

func TestUpsertArtifact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	siteID, err := s.InsertSite(ctx, Site{Name: "瑶山M站"})
	if err != nil {
		t.Fatal(err)
	}

	a := Artifact{
		SiteID:      siteID,
		Code:        "M12:1",
		FoundInTomb: "M12",
		Attributes:  map[string]any{"subtype": "罐", "mouth_diameter": 12.5},
		Confidence:  0.8,
	}
	id1, err := s.UpsertArtifact(ctx, ArtifactPottery, a)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Same (site, code) updates in place.
	a.Attributes["subtype"] = "双耳罐"
	a.Confidence = 0.9
	id2, err := s.UpsertArtifact(ctx, ArtifactPottery, a)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if id2 != id1 {
		t.Errorf("upsert changed id: %d -> %d", id1, id2)
	}

	artifacts, err := s.ArtifactsBySite(ctx, ArtifactPottery, siteID)
	if err != nil {
		t.Fatal(err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(artifacts))
	}
	got := artifacts[0]
	if got.Attributes["subtype"] != "双耳罐" || got.Confidence != 0.9 {
		t.Errorf("artifact = %+v", got)
	}
	if got.Attributes["mouth_diameter"] != 12.5 {
		t.Errorf("numeric attribute = %v", got.Attributes["mouth_diameter"])
	}
}

func TestUpsertArtifactCodeless(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	siteID, err := s.InsertSite(ctx, Site{Name: "无编号遗址"})
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.UpsertArtifact(ctx, ArtifactJade, Artifact{
		SiteID:     siteID,
		Attributes: map[string]any{"jade_type": "璧"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id for codeless artifact")
	}
}

func TestUpsertArtifactCodelessDuplicatesOneSite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateTask(ctx, sampleTask("task-codeless")); err != nil {
		t.Fatal(err)
	}
	siteID, err := s.InsertSite(ctx, Site{Name: "反山遗址"})
	if err != nil {
		t.Fatal(err)
	}

	// Reports regularly yield several finds without an excavation code
	// at one site; each must land as its own row.
	first, err := s.UpsertArtifact(ctx, ArtifactPottery, Artifact{
		TaskID:     "task-codeless",
		SiteID:     siteID,
		Attributes: map[string]any{"vessel_name": "陶罐"},
	})
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.UpsertArtifact(ctx, ArtifactPottery, Artifact{
		TaskID:     "task-codeless",
		SiteID:     siteID,
		Attributes: map[string]any{"vessel_name": "陶鼎"},
	})
	if err != nil {
		t.Fatalf("second codeless artifact on one site: %v", err)
	}
	if first == second {
		t.Fatal("codeless artifacts should not share a row")
	}

	artifacts, err := s.ArtifactsBySite(ctx, ArtifactPottery, siteID)
	if err != nil {
		t.Fatal(err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(artifacts))
	}
}

func TestUpsertArtifactWithoutSite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateTask(ctx, sampleTask("task-nosite")); err != nil {
		t.Fatal(err)
	}

	// Artifact-only runs carry no resolved site; the insert must not
	// trip the site foreign key.
	id, err := s.UpsertArtifact(ctx, ArtifactPottery, Artifact{
		TaskID:     "task-nosite",
		Code:       "M7:12",
		Attributes: map[string]any{"vessel_name": "陶壶"},
	})
	if err != nil {
		t.Fatalf("siteless artifact: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	artifacts, err := s.ArtifactsByTask(ctx, ArtifactPottery, "task-nosite")
	if err != nil {
		t.Fatal(err)
	}
	if len(artifacts) != 1 || artifacts[0].SiteID != 0 || artifacts[0].Code != "M7:12" {
		t.Fatalf("artifacts = %+v", artifacts)
	}
}

func TestUpsertArtifactUnknownKind(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.UpsertArtifact(context.Background(), "bronze", Artifact{}); err == nil {
		t.Fatal("expected error for unknown artifact type")
	}
}

// ---------------------------------------------------------------------------
// Images and links
// ---------------------------------------------------------------------------

func TestImagesAndLinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateTask(ctx, sampleTask("task-img")); err != nil {
		t.Fatal(err)
	}

	imgID, err := s.InsertImage(ctx, Image{
		TaskID:  "task-img",
		Hash:    "abc123",
		Path:    "/data/reports/yaoshan/images/abc123.jpg",
		PageIdx: 5,
		Caption: "图二 M12:1陶罐",
	})
	if err != nil {
		t.Fatalf("inserting image: %v", err)
	}

	// Duplicate hash is ignored, same ID comes back.
	imgID2, err := s.InsertImage(ctx, Image{TaskID: "task-img", Hash: "abc123", Path: "other"})
	if err != nil {
		t.Fatal(err)
	}
	if imgID2 != imgID {
		t.Errorf("duplicate insert id = %d, want %d", imgID2, imgID)
	}

	link := ImageLink{
		ArtifactType: ArtifactPottery,
		ArtifactID:   1,
		ArtifactCode: "M12:1",
		ImageID:      imgID,
		Role:         "photo",
		Method:       "llm_reference",
		Confidence:   0.98,
	}
	if err := s.LinkArtifactImage(ctx, link); err != nil {
		t.Fatalf("linking image: %v", err)
	}

	// Re-linking the same pair replaces the evidence.
	link.Role = "drawing"
	link.Confidence = 0.9
	if err := s.LinkArtifactImage(ctx, link); err != nil {
		t.Fatal(err)
	}

	links, err := s.ArtifactImages(ctx, ArtifactPottery, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	if links[0].Role != "drawing" || links[0].Confidence != 0.9 {
		t.Errorf("link = %+v", links[0])
	}
}

func TestPeriodAndLocationLinksIgnoreDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	siteID, err := s.InsertSite(ctx, Site{Name: "关联遗址"})
	if err != nil {
		t.Fatal(err)
	}
	periodID, err := s.InsertPeriod(ctx, Period{SiteID: siteID, Name: "早期"})
	if err != nil {
		t.Fatal(err)
	}
	structID, err := s.InsertStructure(ctx, Structure{SiteID: siteID, Name: "M1"})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := s.LinkArtifactPeriod(ctx, ArtifactPottery, 1, periodID, 1.0, ""); err != nil {
			t.Fatal(err)
		}
		if err := s.LinkArtifactLocation(ctx, ArtifactPottery, 1, structID, "", ""); err != nil {
			t.Fatal(err)
		}
	}

	var n int
	row := s.DB().QueryRow("SELECT COUNT(*) FROM artifact_period_mapping")
	if err := row.Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("period links = %d, want 1", n)
	}
}

// ---------------------------------------------------------------------------
// Template mappings and triples
// ---------------------------------------------------------------------------

func TestTemplateMappingUpsertKeepsID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mappings := []TemplateMapping{
		{ArtifactType: ArtifactPottery, FieldNameCN: "陶土种类", FieldNameEN: "clay_type",
			CIDOCEntity: "E57", CIDOCProperty: "P45"},
		{ArtifactType: ArtifactPottery, FieldNameCN: "口径", FieldNameEN: "mouth_diameter"},
	}
	if err := s.RegisterTemplateMappings(ctx, mappings); err != nil {
		t.Fatalf("registering mappings: %v", err)
	}

	ids, err := s.TemplateMappingIDs(ctx, ArtifactPottery)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("ids = %v", ids)
	}
	before := ids["陶土种类"]

	// Re-register with a changed description: ID must survive.
	mappings[0].Description = "胎土分类"
	if err := s.RegisterTemplateMappings(ctx, mappings); err != nil {
		t.Fatal(err)
	}
	ids, err = s.TemplateMappingIDs(ctx, ArtifactPottery)
	if err != nil {
		t.Fatal(err)
	}
	if ids["陶土种类"] != before {
		t.Errorf("mapping id changed: %d -> %d", before, ids["陶土种类"])
	}

	got, err := s.TemplateMappings(ctx, ArtifactPottery)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Description != "胎土分类" {
		t.Errorf("description not updated: %+v", got[0])
	}
}

func TestReplaceTriples(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RegisterTemplateMappings(ctx, []TemplateMapping{
		{ArtifactType: ArtifactPottery, FieldNameCN: "陶土种类"},
	}); err != nil {
		t.Fatal(err)
	}
	ids, err := s.TemplateMappingIDs(ctx, ArtifactPottery)
	if err != nil {
		t.Fatal(err)
	}
	mappingID := ids["陶土种类"]

	first := []FactTriple{
		{MappingID: mappingID, Predicate: "P45", ObjectValue: "夹砂红陶", Confidence: 0.8},
		{MappingID: mappingID, Predicate: "P45", ObjectValue: "泥质灰陶"},
	}
	if err := s.ReplaceTriples(ctx, ArtifactPottery, 7, first); err != nil {
		t.Fatalf("first replace: %v", err)
	}

	// Regeneration swaps the whole set instead of accumulating.
	second := []FactTriple{
		{MappingID: mappingID, Predicate: "P45", ObjectValue: "夹砂红褐陶"},
	}
	if err := s.ReplaceTriples(ctx, ArtifactPottery, 7, second); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	triples, err := s.TriplesByArtifact(ctx, ArtifactPottery, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(triples) != 1 {
		t.Fatalf("expected 1 triple, got %d", len(triples))
	}
	if triples[0].ObjectValue != "夹砂红褐陶" {
		t.Errorf("triple = %+v", triples[0])
	}
	if triples[0].Confidence != 1.0 {
		t.Errorf("zero confidence should default to 1.0, got %v", triples[0].Confidence)
	}
}

func TestGetTaskMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetTask(context.Background(), "nope"); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}
