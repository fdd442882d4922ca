package store

// Schema v1 - library index, stats, and vetting history.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS library_index (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  file_path TEXT NOT NULL,
  filename TEXT NOT NULL,
  artist TEXT,
  title TEXT,
  album TEXT,
  year INTEGER,
  duration REAL,
  file_format TEXT,
  file_size INTEGER NOT NULL DEFAULT 0,
  metadata_hash TEXT NOT NULL,
  file_content_hash TEXT NOT NULL,
  indexed_at DATETIME NOT NULL,
  file_mtime DATETIME NOT NULL,
  last_verified DATETIME,
  is_active INTEGER NOT NULL DEFAULT 1
);

-- file_path is unique only among active rows; soft-deleted rows keep history.
CREATE UNIQUE INDEX IF NOT EXISTS idx_library_index_path_active
  ON library_index(file_path) WHERE is_active = 1;

CREATE INDEX IF NOT EXISTS idx_library_index_metadata_hash ON library_index(metadata_hash);
CREATE INDEX IF NOT EXISTS idx_library_index_content_hash ON library_index(file_content_hash);
CREATE INDEX IF NOT EXISTS idx_library_index_is_active ON library_index(is_active);
CREATE INDEX IF NOT EXISTS idx_library_index_format ON library_index(file_format);
CREATE INDEX IF NOT EXISTS idx_library_index_active_metadata ON library_index(is_active, metadata_hash);
CREATE INDEX IF NOT EXISTS idx_library_index_active_content ON library_index(is_active, file_content_hash);
CREATE INDEX IF NOT EXISTS idx_library_index_artist_title ON library_index(artist, title);
CREATE INDEX IF NOT EXISTS idx_library_index_artist_album ON library_index(artist, album);

CREATE TABLE IF NOT EXISTS library_stats (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  total_files INTEGER NOT NULL DEFAULT 0,
  total_size INTEGER NOT NULL DEFAULT 0,
  formats_breakdown TEXT NOT NULL DEFAULT '{}',
  artists_count INTEGER NOT NULL DEFAULT 0,
  albums_count INTEGER NOT NULL DEFAULT 0,
  last_index_time DATETIME,
  index_duration REAL,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS vetting_history (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  import_folder TEXT NOT NULL,
  total_files INTEGER NOT NULL DEFAULT 0,
  duplicates_found INTEGER NOT NULL DEFAULT 0,
  new_songs INTEGER NOT NULL DEFAULT 0,
  uncertain_matches INTEGER NOT NULL DEFAULT 0,
  threshold_used REAL NOT NULL DEFAULT 0,
  vetted_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vetting_history_vetted_at ON vetting_history(vetted_at);
`
