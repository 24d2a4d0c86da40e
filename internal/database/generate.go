package database

// Schema dump for the query layer. sqlc/schema.sql is regenerated from the
// SQLite migrations. The Go files in sqlc/ are kept by hand in sqlc's output
// layout, so a change to queries.sql needs a matching change in
// queries.sql.go. The postgres store is written by hand.

//go:generate sh -c "cd ../.. && go run internal/database/tools/generate_schema.go"
