package store

// schemaSQL is the DDL for all tables.
const schemaSQL = `
-- Extraction task registry, one row per report-level run
CREATE TABLE IF NOT EXISTS extraction_tasks (
    task_id TEXT PRIMARY KEY,
    report_name TEXT NOT NULL,
    report_folder_path TEXT NOT NULL,
    pdf_path TEXT,
    markdown_path TEXT,
    layout_json_path TEXT,
    content_list_json_path TEXT,
    images_folder_path TEXT,
    status TEXT DEFAULT 'pending',
    extraction_config JSON,
    notes TEXT,
    total_pottery INTEGER DEFAULT 0,
    total_jade INTEGER DEFAULT 0,
    total_periods INTEGER DEFAULT 0,
    total_images INTEGER DEFAULT 0,
    error_message TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Per-task progress and diagnostic log
CREATE TABLE IF NOT EXISTS extraction_logs (
    id INTEGER PRIMARY KEY,
    task_id TEXT NOT NULL REFERENCES extraction_tasks(task_id) ON DELETE CASCADE,
    log_level TEXT NOT NULL,
    message TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Excavation sites; site_name is the cross-report identity
CREATE TABLE IF NOT EXISTS sites (
    id INTEGER PRIMARY KEY,
    task_id TEXT REFERENCES extraction_tasks(task_id),
    site_code TEXT,
    site_name TEXT NOT NULL UNIQUE,
    site_alias TEXT,
    site_type TEXT,
    current_location TEXT,
    geographic_coordinates TEXT,
    elevation REAL,
    total_area REAL,
    excavated_area REAL,
    culture_name TEXT,
    absolute_dating TEXT,
    protection_level TEXT,
    preservation_status TEXT,
    source_text_blocks JSON,
    extraction_confidence REAL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Hierarchical site sub-units (zones, altars, cemeteries, tombs)
CREATE TABLE IF NOT EXISTS site_structures (
    id INTEGER PRIMARY KEY,
    site_id INTEGER NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
    parent_id INTEGER REFERENCES site_structures(id),
    structure_level INTEGER,
    structure_code TEXT,
    structure_name TEXT,
    structure_type TEXT,
    relative_position TEXT,
    coordinates TEXT,
    length REAL,
    width REAL,
    depth REAL,
    area REAL,
    description TEXT,
    features TEXT,
    source_text_blocks JSON
);

-- Cultural periods of a site
CREATE TABLE IF NOT EXISTS periods (
    id INTEGER PRIMARY KEY,
    task_id TEXT REFERENCES extraction_tasks(task_id),
    site_id INTEGER NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
    period_code TEXT,
    period_name TEXT NOT NULL,
    period_alias TEXT,
    time_span_start TEXT,
    time_span_end TEXT,
    absolute_dating TEXT,
    relative_dating TEXT,
    development_stage TEXT,
    phase_sequence INTEGER,
    characteristics TEXT,
    representative_artifacts TEXT,
    source_text_blocks JSON,
    extraction_confidence REAL DEFAULT 0
);

-- Pottery artifacts; template-defined fields live in attributes JSON.
-- site_id and artifact_code are nullable: siteless runs and codeless
-- finds still insert, and NULL codes stay distinct under the UNIQUE.
CREATE TABLE IF NOT EXISTS pottery_artifacts (
    id INTEGER PRIMARY KEY,
    task_id TEXT REFERENCES extraction_tasks(task_id),
    site_id INTEGER REFERENCES sites(id) ON DELETE CASCADE,
    artifact_code TEXT,
    found_in_tomb TEXT,
    attributes JSON,
    extra JSON,
    source_text_blocks JSON,
    image_references JSON,
    extraction_confidence REAL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(site_id, artifact_code)
);

-- Jade artifacts, same shape as pottery
CREATE TABLE IF NOT EXISTS jade_artifacts (
    id INTEGER PRIMARY KEY,
    task_id TEXT REFERENCES extraction_tasks(task_id),
    site_id INTEGER REFERENCES sites(id) ON DELETE CASCADE,
    artifact_code TEXT,
    found_in_tomb TEXT,
    attributes JSON,
    extra JSON,
    source_text_blocks JSON,
    image_references JSON,
    extraction_confidence REAL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(site_id, artifact_code)
);

-- Report figure inventory
CREATE TABLE IF NOT EXISTS images (
    id INTEGER PRIMARY KEY,
    task_id TEXT NOT NULL REFERENCES extraction_tasks(task_id) ON DELETE CASCADE,
    image_hash TEXT NOT NULL,
    image_path TEXT NOT NULL,
    image_type TEXT,
    page_idx INTEGER,
    bbox TEXT,
    caption TEXT,
    related_text TEXT,
    file_size INTEGER,
    width INTEGER,
    height INTEGER,
    UNIQUE(task_id, image_hash)
);

-- Artifact to image associations with match evidence
CREATE TABLE IF NOT EXISTS artifact_images (
    id INTEGER PRIMARY KEY,
    artifact_type TEXT NOT NULL,
    artifact_id INTEGER NOT NULL,
    artifact_code TEXT,
    image_id INTEGER NOT NULL REFERENCES images(id) ON DELETE CASCADE,
    image_role TEXT,
    display_order INTEGER DEFAULT 0,
    description TEXT,
    extraction_method TEXT DEFAULT 'auto',
    confidence REAL DEFAULT 0,
    UNIQUE(artifact_type, artifact_id, image_id)
);

-- Artifact to period associations
CREATE TABLE IF NOT EXISTS artifact_period_mapping (
    artifact_type TEXT NOT NULL,
    artifact_id INTEGER NOT NULL,
    period_id INTEGER NOT NULL REFERENCES periods(id) ON DELETE CASCADE,
    confidence REAL DEFAULT 1.0,
    evidence TEXT,
    PRIMARY KEY (artifact_type, artifact_id, period_id)
);

-- Artifact to excavation location associations
CREATE TABLE IF NOT EXISTS artifact_location_mapping (
    artifact_type TEXT NOT NULL,
    artifact_id INTEGER NOT NULL,
    structure_id INTEGER NOT NULL REFERENCES site_structures(id) ON DELETE CASCADE,
    location_type TEXT DEFAULT 'excavation',
    description TEXT,
    PRIMARY KEY (artifact_type, artifact_id, structure_id)
);

-- Registered template field mappings (ontology alignment)
CREATE TABLE IF NOT EXISTS sys_template_mappings (
    id INTEGER PRIMARY KEY,
    artifact_type TEXT NOT NULL,
    field_name_cn TEXT NOT NULL,
    field_name_en TEXT,
    description TEXT,
    cidoc_entity TEXT,
    cidoc_property TEXT,
    target_class TEXT,
    UNIQUE(artifact_type, field_name_cn)
);

-- Semantic fact triples derived from mapped artifact fields
CREATE TABLE IF NOT EXISTS fact_artifact_triples (
    id INTEGER PRIMARY KEY,
    artifact_type TEXT NOT NULL,
    artifact_id INTEGER NOT NULL,
    mapping_id INTEGER NOT NULL REFERENCES sys_template_mappings(id),
    predicate TEXT,
    object_value TEXT NOT NULL,
    confidence REAL DEFAULT 1.0
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_logs_task ON extraction_logs(task_id);
CREATE INDEX IF NOT EXISTS idx_sites_task ON sites(task_id);
CREATE INDEX IF NOT EXISTS idx_structures_site ON site_structures(site_id);
CREATE INDEX IF NOT EXISTS idx_structures_parent ON site_structures(parent_id);
CREATE INDEX IF NOT EXISTS idx_periods_site ON periods(site_id);
CREATE INDEX IF NOT EXISTS idx_pottery_task ON pottery_artifacts(task_id);
CREATE INDEX IF NOT EXISTS idx_jade_task ON jade_artifacts(task_id);
CREATE INDEX IF NOT EXISTS idx_images_task ON images(task_id);
CREATE INDEX IF NOT EXISTS idx_artifact_images_artifact ON artifact_images(artifact_type, artifact_id);
CREATE INDEX IF NOT EXISTS idx_triples_artifact ON fact_artifact_triples(artifact_type, artifact_id);
`
