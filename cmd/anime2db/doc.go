// Package main hosts the anime2db command.
//
// Architecture overview:
//   - Lists: internal/titles reads <year>-<quarter>[-ignore][-urls].txt files from titles.dir. The plain list holds
//     titles, the -urls list holds the resolved anime urls that every other workflow consumes.
//   - Fetch pipeline: internal/fetcher performs one Colly GET per attempt and retries anything other than 200 a fixed
//     number of times with a fixed delay. internal/mal builds entries and search calls on top of it and can archive
//     each raw statistics page to a local directory or a GCS bucket.
//   - Extraction: internal/stats applies a rule table to the statistics page; internal/model maps the result onto
//     table rows and rejects pages whose layout no longer matches.
//   - Persistence: internal/storage opens Postgres (pgx) or SQLite (modernc) from db.engine. Every batch is written in
//     a single transaction after all rows were built and, unless -y is given, confirmed at the terminal.
//   - Configuration & plumbing: Viper populates config from $HOME/.falchooser.yaml and FALCHOOSER_* variables; zap logs
//     to stderr; --metrics-addr exposes Prometheus metrics and health probes while a run is in progress.
//
// Typical season:
//
//	anime2db schema
//	anime2db urls 2017 2 && anime2db urls 2017 2 --ignored
//	anime2db anime 2017 2 && anime2db anime 2017 2 --ignored
//	anime2db 2017 2 -y   # once a day
package main
