// Package cmd defines the catalog-ingest CLI.
//
// The root command loads configuration (YAML file, .env, CATALOG_* env vars)
// and builds the application through server.Build before any subcommand runs:
//   - run: one ingest pass. Prints the run summary as JSON and exits non-zero
//     when the run failed.
//   - discover: resolves product ids per category and prints one JSON line per
//     category with the strategy that produced them.
//
// SIGINT and SIGTERM cancel the command context; a canceled run still
// publishes its partial summary.
package cmd
