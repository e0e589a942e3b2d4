package sqlrepo

import "fmt"

// Dialect selects the upsert syntax. Everything else is shared SQL.
type Dialect int

const (
	MySQL Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "mysql"
}

const reviewColumns = "id, business_id, platform, platform_review_id, author_name, author_avatar_url, rating, " +
	"body_text, source_url, published_at, has_response, response_text, responded_at, created_at, updated_at"

const reviewPlaceholders = "(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)"

const insertReviewsPrefix = "INSERT INTO reviews (" + reviewColumns + ") VALUES "

// On conflict the key, the owning business and the enrichment block are
// left alone. COALESCE keeps an optional value the new fetch lost, and a
// reply once seen is never unset. published_at is immutable so a provider
// that omits it cannot make the row drift. responded_at is assigned before
// response_text because MySQL sees earlier assignments; an unchanged reply
// keeps its stored time.
const onDupReviewsMySQL = ` ON DUPLICATE KEY UPDATE
  author_name       = VALUES(author_name),
  author_avatar_url = COALESCE(VALUES(author_avatar_url), reviews.author_avatar_url),
  rating            = VALUES(rating),
  body_text         = VALUES(body_text),
  source_url        = COALESCE(VALUES(source_url), reviews.source_url),
  has_response      = GREATEST(reviews.has_response, VALUES(has_response)),
  responded_at      = CASE WHEN reviews.response_text <=> VALUES(response_text)
                        THEN COALESCE(reviews.responded_at, VALUES(responded_at))
                        ELSE COALESCE(VALUES(responded_at), reviews.responded_at) END,
  response_text     = COALESCE(VALUES(response_text), reviews.response_text),
  updated_at        = VALUES(updated_at)`

const onConflictReviewsSQLite = ` ON CONFLICT(platform, platform_review_id) DO UPDATE SET
  author_name       = excluded.author_name,
  author_avatar_url = COALESCE(excluded.author_avatar_url, reviews.author_avatar_url),
  rating            = excluded.rating,
  body_text         = excluded.body_text,
  source_url        = COALESCE(excluded.source_url, reviews.source_url),
  has_response      = MAX(reviews.has_response, excluded.has_response),
  responded_at      = CASE WHEN reviews.response_text IS excluded.response_text
                        THEN COALESCE(reviews.responded_at, excluded.responded_at)
                        ELSE COALESCE(excluded.responded_at, reviews.responded_at) END,
  response_text     = COALESCE(excluded.response_text, reviews.response_text),
  updated_at        = excluded.updated_at`

func (d Dialect) reviewUpsertTail() string {
	if d == SQLite {
		return onConflictReviewsSQLite
	}
	return onDupReviewsMySQL
}

const selectReviewCols = `
SELECT id, business_id, platform, platform_review_id, author_name, author_avatar_url, rating,
       body_text, source_url, published_at, has_response, response_text, responded_at,
       sentiment, sentiment_score, keywords, categories, language, is_spam, analyzed_at
FROM reviews`

const listReviewsSQL = selectReviewCols + `
WHERE business_id = ?
ORDER BY published_at DESC, id DESC
LIMIT ?`

const listUnanalyzedSQL = selectReviewCols + `
WHERE business_id = ? AND sentiment IS NULL
ORDER BY published_at DESC, id DESC
LIMIT ?`

const getByKeySQL = selectReviewCols + `
WHERE platform = ? AND platform_review_id = ?`

const applyAnalysisSQL = `
UPDATE reviews SET
  sentiment = ?, sentiment_score = ?, keywords = ?, categories = ?,
  language = ?, is_spam = ?, analyzed_at = ?, updated_at = ?
WHERE id = ?`

// Only fills in a reply when the provider never gave us one.
const backfillResponseSQL = `
UPDATE reviews SET has_response = 1, response_text = ?, responded_at = ?
WHERE id = ? AND has_response = 0`

const businessExistsSQL = `SELECT COUNT(*) FROM businesses WHERE id = ?`

func (d Dialect) upsertBusinessSQL() string {
	if d == SQLite {
		return `INSERT INTO businesses (id, name) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name`
	}
	return `INSERT INTO businesses (id, name) VALUES (?, ?)
ON DUPLICATE KEY UPDATE name = VALUES(name)`
}

func (d Dialect) upsertSourceSQL() string {
	if d == SQLite {
		return `INSERT INTO business_sources (business_id, platform, external_id, options) VALUES (?, ?, ?, ?)
ON CONFLICT(business_id, platform) DO UPDATE SET external_id = excluded.external_id, options = excluded.options`
	}
	return `INSERT INTO business_sources (business_id, platform, external_id, options) VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE external_id = VALUES(external_id), options = VALUES(options)`
}

const selectSourceCols = `
SELECT s.business_id, b.name, s.platform, s.external_id, s.options
FROM business_sources s
JOIN businesses b ON b.id = s.business_id`

const getSourceSQL = selectSourceCols + ` WHERE s.business_id = ? AND s.platform = ?`

const listSourcesSQL = selectSourceCols + ` ORDER BY s.business_id, s.platform`

const listBusinessSourcesSQL = selectSourceCols + ` WHERE s.business_id = ? ORDER BY s.platform`

const lastSyncedSQL = `SELECT last_synced_at FROM sync_windows WHERE business_id = ? AND platform = ?`

// last_synced_at holds unix millis; the write keeps the larger value.
func (d Dialect) markSyncedSQL() string {
	if d == SQLite {
		return `INSERT INTO sync_windows (business_id, platform, last_synced_at) VALUES (?, ?, ?)
ON CONFLICT(business_id, platform) DO UPDATE SET last_synced_at = MAX(sync_windows.last_synced_at, excluded.last_synced_at)`
	}
	return `INSERT INTO sync_windows (business_id, platform, last_synced_at) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE last_synced_at = GREATEST(last_synced_at, VALUES(last_synced_at))`
}

// keysQuery selects (id, platform_review_id) for one platform's keys.
func keysQuery(n int) string {
	return fmt.Sprintf("SELECT id, platform_review_id FROM reviews WHERE platform = ? AND platform_review_id IN (%s)", placeholders(n))
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
