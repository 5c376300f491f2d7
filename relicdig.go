// Package relicdig drives LLM extraction of structured archaeological
// entities (sites, periods, pottery, jade) from parsed Chinese
// excavation reports, persisting results and their provenance.
package relicdig

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/hanlin-zhu/relicdig/extract"
	"github.com/hanlin-zhu/relicdig/imagelink"
	"github.com/hanlin-zhu/relicdig/llm"
	"github.com/hanlin-zhu/relicdig/prompt"
	"github.com/hanlin-zhu/relicdig/report"
	"github.com/hanlin-zhu/relicdig/segment"
	"github.com/hanlin-zhu/relicdig/store"
	"github.com/hanlin-zhu/relicdig/template"
)

// Job describes one report-level extraction run.
type Job struct {
	ReportFolder string
	ReportName   string

	// TaskID reuses a pre-created task (the scheduler registers tasks
	// up front so they are visible while queued). Empty creates one.
	TaskID string

	// Templates overrides the configured workbook paths for this run.
	// Zero-value fields fall back to the workflow config.
	Templates TemplateConfig
}

// Summary is the outcome of a completed run.
type Summary struct {
	TaskID string          `json:"task_id"`
	SiteID int64           `json:"site_id"`
	Stats  store.TaskStats `json:"stats"`
}

// Workflow owns one store connection and one provider and runs report
// extractions strictly sequentially. Concurrent tasks each get their
// own Workflow (see Scheduler).
type Workflow struct {
	cfg      Config
	store    *store.Store
	provider llm.Provider
	recovery *extract.RecoveryLog
	chunker  *segment.Chunker
}

// NewWorkflow opens the store and builds the provider from cfg.
func NewWorkflow(cfg Config) (*Workflow, error) {
	s, err := store.New(cfg.resolveDBPath())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating provider: %w", err)
	}

	return &Workflow{
		cfg:      cfg,
		store:    s,
		provider: provider,
		recovery: extract.NewRecoveryLog(cfg.resolveRecoveryDir()),
		chunker:  segment.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
	}, nil
}

// Store exposes the underlying store for diagnostic access.
func (w *Workflow) Store() *store.Store {
	return w.store
}

// Close shuts down the workflow's store connection.
func (w *Workflow) Close() error {
	return w.store.Close()
}

// CreateTask registers a pending task for a report folder and returns
// its ID. Run picks it up via Job.TaskID.
func (w *Workflow) CreateTask(ctx context.Context, reportFolder, reportName string) (string, error) {
	folder, err := report.Open(reportFolder)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReportNotFound, err)
	}
	if reportName == "" {
		reportName = folder.Name
	}

	cfgJSON, _ := json.Marshal(map[string]string{
		"provider": w.cfg.LLM.Provider,
		"model":    w.cfg.LLM.Model,
	})

	taskID := uuid.NewString()
	err = w.store.CreateTask(ctx, store.Task{
		ID:              taskID,
		ReportName:      reportName,
		ReportFolder:    folder.Dir,
		PDFPath:         folder.PDFPath,
		MarkdownPath:    folder.MarkdownPath,
		LayoutPath:      folder.LayoutPath,
		ContentListPath: folder.ContentListPath,
		ImagesDir:       folder.ImagesDir,
		Config:          string(cfgJSON),
	})
	if err != nil {
		return "", err
	}
	return taskID, nil
}

// Abort requests cooperative cancellation of a task. The running
// workflow observes the flag at its next checkpoint; in-flight LLM
// calls finish first.
func (w *Workflow) Abort(ctx context.Context, taskID string) error {
	return w.store.UpdateTaskStatus(ctx, taskID, store.StatusAborted)
}

// Run executes the full extraction pipeline for one report. On
// cancellation the task ends aborted; on any other failure it ends
// failed with the cause recorded.
func (w *Workflow) Run(ctx context.Context, job Job) (*Summary, error) {
	folder, err := report.Open(job.ReportFolder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReportNotFound, err)
	}

	taskID := job.TaskID
	if taskID == "" {
		taskID, err = w.CreateTask(ctx, job.ReportFolder, job.ReportName)
		if err != nil {
			return nil, err
		}
	}

	summary, err := w.run(ctx, taskID, folder, w.templatePaths(job.Templates))
	if err != nil {
		if errors.Is(err, ErrTaskAborted) {
			slog.Warn("task aborted", "task_id", taskID)
			w.store.UpdateTaskStatus(ctx, taskID, store.StatusAborted)
			w.logTask(ctx, taskID, "WARNING", "任务已中止")
			return nil, err
		}
		slog.Error("task failed", "task_id", taskID, "error", err)
		w.logTask(ctx, taskID, "ERROR", "抽取失败: "+truncate(err.Error(), 500))
		w.store.SetTaskError(ctx, taskID, truncate(err.Error(), 500))
		return nil, err
	}
	return summary, nil
}

// templatePaths merges per-job overrides over the configured paths and
// drops unset kinds.
func (w *Workflow) templatePaths(override TemplateConfig) map[prompt.EntityKind]string {
	pick := func(job, cfg string) string {
		if job != "" {
			return job
		}
		return cfg
	}
	paths := map[prompt.EntityKind]string{
		prompt.Site:    pick(override.Site, w.cfg.Templates.Site),
		prompt.Period:  pick(override.Period, w.cfg.Templates.Period),
		prompt.Pottery: pick(override.Pottery, w.cfg.Templates.Pottery),
		prompt.Jade:    pick(override.Jade, w.cfg.Templates.Jade),
	}
	for kind, path := range paths {
		if path == "" {
			delete(paths, kind)
		}
	}
	return paths
}

func (w *Workflow) run(ctx context.Context, taskID string, folder *report.Folder, paths map[prompt.EntityKind]string) (*Summary, error) {
	if err := w.checkCancelled(ctx, taskID); err != nil {
		return nil, err
	}
	w.logTask(ctx, taskID, "INFO", "开始抽取流程")
	if err := w.store.UpdateTaskStatus(ctx, taskID, store.StatusRunning); err != nil {
		return nil, err
	}

	// Template registration. A broken workbook skips its kind instead
	// of failing the run.
	catalogs := make(map[prompt.EntityKind]*template.Catalog)
	for _, kind := range prompt.Kinds() {
		path, ok := paths[kind]
		if !ok {
			continue
		}
		if err := w.checkCancelled(ctx, taskID); err != nil {
			return nil, err
		}
		cat, err := template.Resolve(path)
		if err != nil {
			w.logTask(ctx, taskID, "WARNING", fmt.Sprintf("%s 模版注册失败: %v", kind.LabelCN(), err))
			continue
		}
		if err := w.registerTemplate(ctx, kind, cat); err != nil {
			w.logTask(ctx, taskID, "WARNING", fmt.Sprintf("%s 模版注册失败: %v", kind.LabelCN(), err))
			continue
		}
		catalogs[kind] = cat
		w.logTask(ctx, taskID, "INFO", fmt.Sprintf("已注册 %s 模版映射", kind.LabelCN()))
	}

	// Image indexing.
	if err := w.checkCancelled(ctx, taskID); err != nil {
		return nil, err
	}
	index, totalImages, err := w.indexImages(ctx, taskID, folder)
	if err != nil {
		w.logTask(ctx, taskID, "WARNING", fmt.Sprintf("图片索引失败: %v", err))
		index = &imagelink.Index{}
	} else {
		w.logTask(ctx, taskID, "INFO", fmt.Sprintf("图片索引完成: %d张", totalImages))
	}

	text, err := folder.Text()
	if err != nil {
		return nil, err
	}

	// Site resolution.
	if err := w.checkCancelled(ctx, taskID); err != nil {
		return nil, err
	}
	var siteID int64
	var siteName string
	if cat, ok := catalogs[prompt.Site]; ok {
		siteID, siteName, err = w.extractSite(ctx, taskID, folder, text, cat)
		if err != nil {
			return nil, err
		}
		w.logTask(ctx, taskID, "INFO", fmt.Sprintf("遗址信息处理完成: site_id=%d", siteID))
	} else if existing, err := w.store.GetSiteByReportFolder(ctx, folder.Dir); err == nil {
		siteID, siteName = existing.ID, existing.Name
		w.logTask(ctx, taskID, "INFO", fmt.Sprintf("复用已有遗址 ID: %d", siteID))
	}

	// Periods.
	totalPeriods := 0
	if cat, ok := catalogs[prompt.Period]; ok && siteID != 0 {
		if err := w.checkCancelled(ctx, taskID); err != nil {
			return nil, err
		}
		totalPeriods, err = w.extractPeriods(ctx, taskID, siteID, siteName, text, cat)
		if err != nil {
			return nil, err
		}
		w.logTask(ctx, taskID, "INFO", fmt.Sprintf("时期信息抽取完成: %d个", totalPeriods))
	}

	// Artifacts, pottery then jade.
	counts := map[prompt.EntityKind]int{}
	for _, kind := range []prompt.EntityKind{prompt.Pottery, prompt.Jade} {
		cat, ok := catalogs[kind]
		if !ok {
			continue
		}
		if err := w.checkCancelled(ctx, taskID); err != nil {
			return nil, err
		}
		n, err := w.extractArtifacts(ctx, taskID, siteID, siteName, kind, cat, text, index)
		if err != nil {
			return nil, err
		}
		counts[kind] = n
		w.logTask(ctx, taskID, "INFO", fmt.Sprintf("%s信息抽取完成: %d件", kind.LabelCN(), n))
	}

	stats := store.TaskStats{
		TotalPottery: counts[prompt.Pottery],
		TotalJade:    counts[prompt.Jade],
		TotalPeriods: totalPeriods,
		TotalImages:  totalImages,
	}
	if err := w.store.UpdateTaskStatistics(ctx, taskID, stats); err != nil {
		return nil, err
	}
	if err := w.store.UpdateTaskStatus(ctx, taskID, store.StatusCompleted); err != nil {
		return nil, err
	}
	w.logTask(ctx, taskID, "INFO", "抽取流程完成")

	return &Summary{TaskID: taskID, SiteID: siteID, Stats: stats}, nil
}

// checkCancelled is the cooperative cancellation checkpoint, consulted
// at phase and chunk boundaries.
func (w *Workflow) checkCancelled(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTaskAborted, err)
	}
	status, err := w.store.TaskStatus(ctx, taskID)
	if err != nil {
		return err
	}
	if status == store.StatusAborted {
		return ErrTaskAborted
	}
	return nil
}

// registerTemplate upserts the catalog's field mappings so triples can
// reference stable mapping IDs.
func (w *Workflow) registerTemplate(ctx context.Context, kind prompt.EntityKind, cat *template.Catalog) error {
	mappings := make([]store.TemplateMapping, 0, len(cat.Fields))
	for _, f := range cat.Fields {
		mappings = append(mappings, store.TemplateMapping{
			ArtifactType:  kind.String(),
			FieldNameCN:   f.NameCN,
			FieldNameEN:   f.StorageKey,
			Description:   f.Description,
			CIDOCEntity:   f.OntologyEntity,
			CIDOCProperty: f.OntologyRelation,
			TargetClass:   f.OntologyClass,
		})
	}
	return w.store.RegisterTemplateMappings(ctx, mappings)
}

// indexImages loads the report's content list and records every image
// file the report folder carries.
func (w *Workflow) indexImages(ctx context.Context, taskID string, folder *report.Folder) (*imagelink.Index, int, error) {
	index := &imagelink.Index{}
	if folder.ContentListPath != "" {
		loaded, err := imagelink.LoadIndex(folder.ContentListPath)
		if err != nil {
			return index, 0, err
		}
		index = loaded
	}
	if folder.ImagesDir == "" {
		return index, 0, nil
	}

	infos, err := index.IndexImages(folder.ImagesDir)
	if err != nil {
		return index, 0, err
	}
	for _, info := range infos {
		_, err := w.store.InsertImage(ctx, store.Image{
			TaskID:   taskID,
			Hash:     info.Key,
			Path:     info.Path,
			PageIdx:  info.PageIdx,
			Caption:  info.Caption,
			FileSize: info.FileSize,
		})
		if err != nil {
			return index, 0, err
		}
	}
	return index, len(infos), nil
}

// extractSite resolves the report's site: extract from the report head,
// reuse a site from an earlier run over the same folder, or match an
// existing site by name (cross-report merge). Returns (id, name).
func (w *Workflow) extractSite(ctx context.Context, taskID string, folder *report.Folder, text string, cat *template.Catalog) (int64, string, error) {
	head := report.Head(text, 5000)
	synth := prompt.ForKind(prompt.Site, cat)

	recs, raw, err := w.extractChunk(ctx, synth, head, prompt.Context{})
	if err != nil {
		if path, saveErr := w.recovery.Save(taskID, prompt.Site.String(), "报告开头", err, raw); saveErr == nil {
			w.logTask(ctx, taskID, "WARNING", "已保存失败的响应片段至: "+path)
		}
		return 0, "", fmt.Errorf("extracting site: %w", err)
	}
	if len(recs) == 0 {
		return 0, "", fmt.Errorf("extracting site: %w", ErrUnparsableResponse)
	}

	rec := extract.MapFields(recs[0], cat)
	rec.TaskID = taskID
	rec.SourceBlocks = []int{0}
	if rec.Confidence == 0 {
		rec.Confidence = 0.8
	}

	name := stringField(rec, "site_name", "遗址名称", "名称")
	if name == "" {
		// Last resort: the report name stands in for the site name.
		name = folder.Name
		w.logTask(ctx, taskID, "WARNING", fmt.Sprintf("未提取到遗址名称，使用报告名称 %q 代替", name))
	}
	site := siteFromRecord(taskID, name, rec)

	var siteID int64
	if existing, err := w.store.GetSiteByReportFolder(ctx, folder.Dir); err == nil {
		// Incremental re-extraction of a known report.
		siteID = existing.ID
		if err := w.store.UpdateSite(ctx, siteID, site); err != nil {
			return 0, "", err
		}
		w.logTask(ctx, taskID, "INFO", fmt.Sprintf("发现已有遗址记录 (ID: %d)，执行更新模式", siteID))
	} else if !errors.Is(err, sql.ErrNoRows) {
		return 0, "", err
	} else {
		id, created, err := w.store.FindOrCreateSiteByName(ctx, site)
		if err != nil {
			return 0, "", err
		}
		siteID = id
		if !created {
			// Cross-report merge onto the matched site.
			w.logTask(ctx, taskID, "INFO", fmt.Sprintf("根据名称 %q 匹配到已有遗址 (ID: %d)，合并数据", name, siteID))
			if err := w.store.UpdateSite(ctx, siteID, site); err != nil {
				return 0, "", err
			}
		}
	}

	if err := w.replaceTriples(ctx, prompt.Site, siteID, rec); err != nil {
		w.logTask(ctx, taskID, "WARNING", fmt.Sprintf("生成三元组失败: %v", err))
	}
	if err := w.saveStructures(ctx, taskID, siteID, rec); err != nil {
		w.logTask(ctx, taskID, "WARNING", fmt.Sprintf("遗址结构处理失败: %v", err))
	}
	return siteID, name, nil
}

// saveStructures persists the site's hierarchical sub-units. Parents
// are resolved in a second pass once every structure has an ID.
func (w *Workflow) saveStructures(ctx context.Context, taskID string, siteID int64, rec extract.Record) error {
	raw, ok := rec.Fields["structures"]
	if !ok {
		raw, ok = rec.Extra["structures"]
	}
	list, isList := raw.([]any)
	if !ok || !isList || len(list) == 0 {
		return nil
	}
	w.logTask(ctx, taskID, "INFO", fmt.Sprintf("发现 %d 个遗址结构单元，正在处理...", len(list)))

	ids := make(map[string]int64)
	parents := make(map[string]string)
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := obj["structure_name"].(string)
		if name == "" {
			continue
		}
		if parent, _ := obj["parent_structure_name"].(string); parent != "" {
			parents[name] = parent
		}

		// Re-runs update in place instead of duplicating units.
		if id, err := w.store.StructureIDByName(ctx, siteID, name); err == nil {
			ids[name] = id
			continue
		}
		typ, _ := obj["structure_type"].(string)
		desc, _ := obj["description"].(string)
		id, err := w.store.InsertStructure(ctx, store.Structure{
			SiteID:       siteID,
			Name:         name,
			Type:         typ,
			Description:  desc,
			SourceBlocks: []int{0},
		})
		if err != nil {
			return err
		}
		ids[name] = id
	}

	for name, parent := range parents {
		childID, okChild := ids[name]
		parentID, okParent := ids[parent]
		if okChild && okParent {
			if err := w.store.SetStructureParent(ctx, childID, parentID); err != nil {
				return err
			}
		}
	}
	return nil
}

// extractPeriods pulls the site's cultural periods from the report's
// middle section.
func (w *Workflow) extractPeriods(ctx context.Context, taskID string, siteID int64, siteName, text string, cat *template.Catalog) (int, error) {
	body := report.Slice(text, 5000, 15000)
	if body == "" {
		body = report.Head(text, 5000)
	}
	synth := prompt.ForKind(prompt.Period, cat)

	recs, raw, err := w.extractChunk(ctx, synth, body, prompt.Context{SiteName: siteName})
	if err != nil {
		if path, saveErr := w.recovery.Save(taskID, prompt.Period.String(), "时期章节", err, raw); saveErr == nil {
			w.logTask(ctx, taskID, "WARNING", "已保存失败的响应片段至: "+path)
		}
		return 0, fmt.Errorf("extracting periods: %w", err)
	}

	mappings, err := w.fieldMappings(ctx, prompt.Period)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, r := range recs {
		rec := extract.MapFields(r, cat)
		rec.TaskID = taskID
		rec.SiteID = siteID
		rec.SourceBlocks = []int{1}
		if rec.Confidence == 0 {
			rec.Confidence = 0.8
		}

		periodID, err := w.store.InsertPeriod(ctx, periodFromRecord(taskID, siteID, rec))
		if err != nil {
			return count, err
		}
		count++
		if triples := extract.Triples(rec, mappings); len(triples) > 0 {
			if err := w.store.ReplaceTriples(ctx, prompt.Period.String(), periodID, storeTriples(triples)); err != nil {
				w.logTask(ctx, taskID, "WARNING", fmt.Sprintf("生成三元组失败: %v", err))
			}
		}
	}
	return count, nil
}

// extractArtifacts runs the per-tomb, per-chunk extraction loop for one
// artifact kind and persists the reconciled records.
func (w *Workflow) extractArtifacts(ctx context.Context, taskID string, siteID int64, siteName string, kind prompt.EntityKind, cat *template.Catalog, text string, index *imagelink.Index) (int, error) {
	tombs := segment.SplitByTomb(text)
	if len(tombs) == 0 {
		tombs = []segment.Tomb{{Text: text}}
	}
	w.logTask(ctx, taskID, "INFO", fmt.Sprintf("文本分为%d个墓葬块", len(tombs)))

	synth := prompt.ForKind(kind, cat)
	var collected []extract.Record

	for i, tomb := range tombs {
		if err := w.checkCancelled(ctx, taskID); err != nil {
			return 0, err
		}
		tombName := tomb.Name
		if tombName == "" {
			tombName = "全文"
		}
		w.logTask(ctx, taskID, "INFO", fmt.Sprintf("处理 %s (%d/%d)", tombName, i+1, len(tombs)))

		chunks := w.chunker.Split(tomb.Text)
		if len(chunks) > 1 {
			w.logTask(ctx, taskID, "INFO", fmt.Sprintf("文本过长，已切分为 %d 个片段进行抽取", len(chunks)))
		}

		for ci, chunk := range chunks {
			if err := w.checkCancelled(ctx, taskID); err != nil {
				return 0, err
			}

			pctx := prompt.Context{SiteName: siteName, TombName: tombName}
			recs, raw, err := w.extractChunk(ctx, synth, chunk, pctx)
			if err != nil {
				where := fmt.Sprintf("%s 片段%d", tombName, ci+1)
				w.logTask(ctx, taskID, "ERROR", fmt.Sprintf("%s 抽取失败: %v", where, err))
				if raw != "" {
					if path, saveErr := w.recovery.Save(taskID, kind.String(), where, err, raw); saveErr == nil {
						w.logTask(ctx, taskID, "WARNING", "已保存失败的响应片段至: "+path)
					}
				}
				continue
			}

			for j := range recs {
				recs[j].TaskID = taskID
				recs[j].SiteID = siteID
				recs[j].SourceBlocks = []int{i}
				if recs[j].Confidence == 0 {
					recs[j].Confidence = 0.8
				}
				if recs[j].FoundInTomb == "" {
					recs[j].FoundInTomb = tombName
				}
			}
			collected = append(collected, recs...)
			w.logTask(ctx, taskID, "INFO", fmt.Sprintf("%s (片段%d) 抽取到 %d 件", tombName, ci+1, len(recs)))
		}
	}

	// Reconciliation: expand code ranges, normalize tomb names, merge
	// partial extractions of the same artifact.
	w.logTask(ctx, taskID, "INFO", "检查并扩展文物编号范围...")
	expander := extract.NewExpander(w.provider)
	collected = expander.Expand(ctx, collected)
	extract.NormalizeTombNames(collected)

	for _, c := range extract.DetectConflicts(collected) {
		fields := make([]string, len(c.Conflicts))
		for i, fc := range c.Conflicts {
			fields[i] = fc.Field
		}
		w.logTask(ctx, taskID, "WARNING",
			fmt.Sprintf("%s 多处抽取存在字段冲突: %s", c.Code, strings.Join(fields, "、")))
	}

	merged := extract.Merge(collected)

	// Codeless records escape the code-keyed merge; cluster them by
	// field similarity so duplicated keyless finds collapse too.
	var coded, keyless []extract.Record
	for _, rec := range merged {
		if rec.Code == "" {
			keyless = append(keyless, rec)
		} else {
			coded = append(coded, rec)
		}
	}
	if len(keyless) > 1 {
		threshold := w.cfg.SimilarityThreshold
		if threshold <= 0 {
			threshold = DefaultConfig().SimilarityThreshold
		}
		keyless = extract.MergeBySimilarity(keyless, threshold)
	}
	merged = append(coded, keyless...)

	ms := extract.Stats(collected, merged)
	w.logTask(ctx, taskID, "INFO", fmt.Sprintf("合并完成: %d -> %d (压缩率 %.0f%%)",
		ms.OriginalCount, ms.MergedCount, ms.ReductionRate*100))

	mapped := make([]extract.Record, 0, len(merged))
	for _, rec := range merged {
		mapped = append(mapped, extract.MapFields(rec, cat))
	}
	before := len(mapped)
	mapped = extract.FilterByKind(mapped, kind)
	if dropped := before - len(mapped); dropped > 0 {
		w.logTask(ctx, taskID, "WARNING", fmt.Sprintf("剔除 %d 条材质不符的记录", dropped))
	}

	mappings, err := w.fieldMappings(ctx, kind)
	if err != nil {
		return 0, err
	}
	var periods []store.Period
	if siteID != 0 {
		if ps, err := w.store.PeriodsBySite(ctx, siteID); err == nil {
			periods = ps
		}
	}
	linker := imagelink.NewLinker(index)

	linkResults := make(map[string][]imagelink.LinkedImage, len(mapped))
	for _, rec := range mapped {
		artifactID, err := w.store.UpsertArtifact(ctx, kind.String(), store.Artifact{
			TaskID:       taskID,
			SiteID:       siteID,
			Code:         rec.Code,
			FoundInTomb:  rec.FoundInTomb,
			Attributes:   rec.Fields,
			Extra:        rec.Extra,
			SourceBlocks: rec.SourceBlocks,
			ImageRefs:    rec.ImageRefs,
			Confidence:   rec.Confidence,
		})
		if err != nil {
			return 0, err
		}

		if triples := extract.Triples(rec, mappings); len(triples) > 0 {
			if err := w.store.ReplaceTriples(ctx, kind.String(), artifactID, storeTriples(triples)); err != nil {
				w.logTask(ctx, taskID, "WARNING", fmt.Sprintf("生成三元组失败: %v", err))
			}
		}

		// Tie the find to its burial when the site's structures include it.
		if rec.FoundInTomb != "" && siteID != 0 {
			if structID, err := w.store.StructureIDByName(ctx, siteID, rec.FoundInTomb); err == nil {
				w.store.LinkArtifactLocation(ctx, kind.String(), artifactID, structID, "excavation", "")
			}
		}

		// Dating link when the record names a period the site knows.
		if evidence := stringField(rec, "period_name", "sub_period", "所属时期"); evidence != "" {
			for _, p := range periods {
				if strings.Contains(evidence, p.Name) || strings.Contains(p.Name, evidence) {
					w.store.LinkArtifactPeriod(ctx, kind.String(), artifactID, p.ID, rec.Confidence, evidence)
					break
				}
			}
		}

		linked := linker.Link(rec)
		linkResults[rec.Code] = linked
		for _, img := range linked {
			imageID, err := w.store.ImageIDByHash(ctx, taskID, img.Key)
			if err != nil {
				continue
			}
			link := store.ImageLink{
				ArtifactType: kind.String(),
				ArtifactID:   artifactID,
				ArtifactCode: rec.Code,
				ImageID:      imageID,
				Role:         img.Role,
				DisplayOrder: img.DisplayOrder,
				Method:       img.MatchMethod,
				Confidence:   img.Confidence,
			}
			if err := w.store.LinkArtifactImage(ctx, link); err != nil {
				w.logTask(ctx, taskID, "WARNING", fmt.Sprintf("图片关联失败: %v", err))
			}
		}
	}
	ls := imagelink.Statistics(linkResults)
	w.logTask(ctx, taskID, "INFO", fmt.Sprintf("图片关联完成: %d/%d 件有图 (共 %d 张)",
		ls.ArtifactsWithImages, ls.TotalArtifacts, ls.TotalImagesLinked))

	return len(mapped), nil
}

// extractChunk runs one prompt/complete/normalize round trip. The raw
// response is returned alongside any error so callers can dump it.
func (w *Workflow) extractChunk(ctx context.Context, synth prompt.Synthesizer, text string, pctx prompt.Context) ([]extract.Record, string, error) {
	raw, err := w.provider.Complete(ctx, llm.Request{Prompt: synth.Extraction(text, pctx)})
	if err != nil {
		return nil, "", err
	}
	value, err := extract.Normalize(raw)
	if err != nil {
		return nil, raw, err
	}
	return extract.RecordsFromValue(value), raw, nil
}

// fieldMappings reads the registered mappings back as the triple
// generator's lookup rows.
func (w *Workflow) fieldMappings(ctx context.Context, kind prompt.EntityKind) ([]extract.Mapping, error) {
	rows, err := w.store.TemplateMappings(ctx, kind.String())
	if err != nil {
		return nil, err
	}
	mappings := make([]extract.Mapping, 0, len(rows))
	for _, r := range rows {
		mappings = append(mappings, extract.Mapping{
			ID:         r.ID,
			NameCN:     r.FieldNameCN,
			StorageKey: r.FieldNameEN,
			Relation:   r.CIDOCProperty,
		})
	}
	return mappings, nil
}

// replaceTriples regenerates an entity's triples from its mapped record.
func (w *Workflow) replaceTriples(ctx context.Context, kind prompt.EntityKind, entityID int64, rec extract.Record) error {
	mappings, err := w.fieldMappings(ctx, kind)
	if err != nil {
		return err
	}
	triples := extract.Triples(rec, mappings)
	if len(triples) == 0 {
		return nil
	}
	return w.store.ReplaceTriples(ctx, kind.String(), entityID, storeTriples(triples))
}

func storeTriples(triples []extract.Triple) []store.FactTriple {
	out := make([]store.FactTriple, len(triples))
	for i, t := range triples {
		out[i] = store.FactTriple{
			MappingID:   t.MappingID,
			Predicate:   t.Predicate,
			ObjectValue: t.Object,
			Confidence:  t.Confidence,
		}
	}
	return out
}

// logTask writes to both the task log table and the process log.
func (w *Workflow) logTask(ctx context.Context, taskID, level, message string) {
	if err := w.store.AddLog(ctx, taskID, level, message); err != nil {
		slog.Warn("writing task log", "task_id", taskID, "error", err)
	}
	switch level {
	case "ERROR":
		slog.Error(message, "task_id", taskID)
	case "WARNING":
		slog.Warn(message, "task_id", taskID)
	default:
		slog.Info(message, "task_id", taskID)
	}
}

// siteFromRecord shapes a mapped site record into its store row.
func siteFromRecord(taskID, name string, rec extract.Record) store.Site {
	return store.Site{
		TaskID:             taskID,
		Code:               stringField(rec, "site_code"),
		Name:               name,
		Alias:              stringField(rec, "site_alias"),
		Type:               stringField(rec, "site_type"),
		CurrentLocation:    stringField(rec, "current_location"),
		Coordinates:        stringField(rec, "geographic_coordinates"),
		Elevation:          floatField(rec, "elevation"),
		TotalArea:          floatField(rec, "total_area"),
		ExcavatedArea:      floatField(rec, "excavated_area"),
		CultureName:        stringField(rec, "culture_name"),
		AbsoluteDating:     stringField(rec, "absolute_dating"),
		ProtectionLevel:    stringField(rec, "protection_level"),
		PreservationStatus: stringField(rec, "preservation_status"),
		SourceBlocks:       rec.SourceBlocks,
		Confidence:         rec.Confidence,
	}
}

// periodFromRecord shapes a mapped period record into its store row.
func periodFromRecord(taskID string, siteID int64, rec extract.Record) store.Period {
	return store.Period{
		TaskID:          taskID,
		SiteID:          siteID,
		Code:            stringField(rec, "period_code"),
		Name:            stringField(rec, "period_name", "时期名称"),
		Alias:           stringField(rec, "period_alias"),
		TimeSpanStart:   stringField(rec, "time_span_start"),
		TimeSpanEnd:     stringField(rec, "time_span_end"),
		AbsoluteDating:  stringField(rec, "absolute_dating"),
		RelativeDating:  stringField(rec, "relative_dating"),
		Stage:           stringField(rec, "development_stage"),
		PhaseSequence:   int(floatField(rec, "phase_sequence")),
		Characteristics: stringField(rec, "characteristics"),
		Representative:  stringField(rec, "representative_artifacts"),
		SourceBlocks:    rec.SourceBlocks,
		Confidence:      rec.Confidence,
	}
}

// stringField reads the first non-empty string value under any of the
// given keys, checking mapped fields before unmapped extras.
func stringField(rec extract.Record, keys ...string) string {
	for _, key := range keys {
		for _, m := range []map[string]any{rec.Fields, rec.Extra} {
			if v, ok := m[key]; ok {
				switch t := v.(type) {
				case string:
					if s := strings.TrimSpace(t); s != "" {
						return s
					}
				case float64:
					return strings.TrimSuffix(fmt.Sprintf("%v", t), ".0")
				}
			}
		}
	}
	return ""
}

// floatField reads a numeric value under key, accepting number-typed
// JSON or a leading-number string.
func floatField(rec extract.Record, key string) float64 {
	for _, m := range []map[string]any{rec.Fields, rec.Extra} {
		v, ok := m[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t
		case int:
			return float64(t)
		case string:
			var f float64
			if _, err := fmt.Sscanf(strings.TrimSpace(t), "%f", &f); err == nil {
				return f
			}
		}
	}
	return 0
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
