// Package stats persists submission and outcome counters in SQLite and
// answers the aggregate queries behind the stats command and API endpoint.
package stats
