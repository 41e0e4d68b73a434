package store

// Schema bootstrap. Every statement is idempotent so the crawler can be
// pointed at an empty database and own its own tables.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sites (
		id           BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		url          VARCHAR(2048) NOT NULL,
		is_onion     BOOLEAN NOT NULL DEFAULT FALSE,
		is_i2p       BOOLEAN NOT NULL DEFAULT FALSE,
		last_crawled DATETIME NULL,
		created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uq_sites_url (url(768))
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS pages (
		id           BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		site_id      BIGINT UNSIGNED NOT NULL,
		url          VARCHAR(2048) NOT NULL,
		title        VARCHAR(1024) NOT NULL DEFAULT '',
		content_text MEDIUMTEXT,
		html_content MEDIUMTEXT,
		depth        INT NOT NULL DEFAULT 0,
		crawled_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		KEY idx_pages_url (url(768)),
		KEY idx_pages_site_id (site_id),
		KEY idx_pages_depth (depth),
		CONSTRAINT fk_pages_site FOREIGN KEY (site_id)
			REFERENCES sites (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS media_files (
		id                BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		page_id           BIGINT UNSIGNED NOT NULL,
		url               VARCHAR(2048) NOT NULL,
		file_type         VARCHAR(128) NOT NULL DEFAULT '',
		media_category    VARCHAR(32) NOT NULL DEFAULT 'other',
		description       TEXT,
		content           LONGBLOB NULL,
		size_bytes        BIGINT NOT NULL DEFAULT 0,
		filename          VARCHAR(512) NOT NULL DEFAULT '',
		minio_bucket      VARCHAR(128) NOT NULL DEFAULT '',
		minio_object_name VARCHAR(512) NOT NULL DEFAULT '',
		downloaded_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		KEY idx_media_page_id (page_id),
		KEY idx_media_file_type (file_type),
		KEY idx_media_category (media_category),
		KEY idx_media_size (size_bytes),
		UNIQUE KEY uq_media_page_url (page_id, url(700)),
		CONSTRAINT fk_media_page FOREIGN KEY (page_id)
			REFERENCES pages (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}
