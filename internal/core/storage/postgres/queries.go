package postgres

// SQL for the rating event log and the rollup tables.

const (
	// queryAppendEvent inserts one immutable rating event.
	// RETURNING retrieves the auto-generated ingest_seq for cursor tracking.
	// ON CONFLICT DO NOTHING makes redelivered appends harmless.
	queryAppendEvent = `
		INSERT INTO rating_events (
			id, item_id, rating, mode, date_key, joke_text, author, submitted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
		RETURNING ingest_seq
	`

	// queryListAfterCursor pages through the log in strict ingest order.
	// cursor=0 restarts from the beginning, which makes a full scan a
	// finite, restartable enumeration.
	queryListAfterCursor = `
		SELECT id, item_id, rating, mode, date_key, joke_text, author, submitted_at, ingest_seq
		FROM rating_events
		WHERE ingest_seq > $1
		ORDER BY ingest_seq ASC
		LIMIT $2
	`

	// queryListForLiveItem fetches one live item's partition.
	queryListForLiveItem = `
		SELECT id, item_id, rating, mode, date_key, joke_text, author, submitted_at, ingest_seq
		FROM rating_events
		WHERE mode = 'live' AND item_id = $1
		ORDER BY ingest_seq ASC
	`

	// queryListForDailyItem fetches one (date, item) daily partition.
	queryListForDailyItem = `
		SELECT id, item_id, rating, mode, date_key, joke_text, author, submitted_at, ingest_seq
		FROM rating_events
		WHERE mode = 'daily' AND item_id = $1 AND date_key = $2
		ORDER BY ingest_seq ASC
	`

	// queryListRecent serves the recent-activity projection, newest first.
	queryListRecent = `
		SELECT id, item_id, rating, mode, date_key, joke_text, author, submitted_at, ingest_seq
		FROM rating_events
		ORDER BY submitted_at DESC, ingest_seq DESC
		LIMIT $1
	`

	// queryApplyRollup folds one rating into a rollup row as a single
	// atomic conditional mutation: counters and score increment, the
	// activity timestamp advances via GREATEST, cached text/author are
	// first-write-wins via COALESCE, and sort_average materializes only
	// once the row reaches the promotion threshold. RETURNING exposes the
	// post-update totals so the caller can detect threshold crossings.
	queryApplyRollup = `
		INSERT INTO rating_rollups (
			scope, key, count1, count2, count3, count4, count5,
			total_ratings, total_score, last_rated_at, cached_text, cached_author, sort_average
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $9, $10, $11, NULL)
		ON CONFLICT (scope, key) DO UPDATE SET
			count1        = rating_rollups.count1 + EXCLUDED.count1,
			count2        = rating_rollups.count2 + EXCLUDED.count2,
			count3        = rating_rollups.count3 + EXCLUDED.count3,
			count4        = rating_rollups.count4 + EXCLUDED.count4,
			count5        = rating_rollups.count5 + EXCLUDED.count5,
			total_ratings = rating_rollups.total_ratings + 1,
			total_score   = rating_rollups.total_score + EXCLUDED.total_score,
			last_rated_at = GREATEST(rating_rollups.last_rated_at, EXCLUDED.last_rated_at),
			cached_text   = COALESCE(rating_rollups.cached_text, EXCLUDED.cached_text),
			cached_author = COALESCE(rating_rollups.cached_author, EXCLUDED.cached_author),
			sort_average  = CASE
				WHEN rating_rollups.total_ratings + 1 >= 3 THEN
					ROUND((rating_rollups.total_score + EXCLUDED.total_score)::numeric
						/ (rating_rollups.total_ratings + 1), 2)
				ELSE NULL
			END
		RETURNING total_ratings, total_score
	`

	// queryGetRollup fetches one rollup record.
	queryGetRollup = `
		SELECT key, count1, count2, count3, count4, count5,
			total_ratings, total_score, last_rated_at, cached_text, cached_author
		FROM rating_rollups
		WHERE scope = $1 AND key = $2
	`

	// queryListAuthorRollups fetches every author rollup.
	queryListAuthorRollups = `
		SELECT key, count1, count2, count3, count4, count5,
			total_ratings, total_score, last_rated_at, cached_text, cached_author
		FROM rating_rollups
		WHERE scope = 'author'
	`

	// queryListTopPerformers serves the ranked index. The partial index on
	// sort_average makes this an index-ordered read, not a scan.
	queryListTopPerformers = `
		SELECT key, sort_average, count1, count2, count3, count4, count5,
			total_ratings, total_score, last_rated_at, cached_text, cached_author
		FROM rating_rollups
		WHERE scope = 'item' AND sort_average IS NOT NULL
		ORDER BY sort_average DESC, total_ratings DESC, last_rated_at DESC
		LIMIT $1
	`
)
