// Package scrape contains the scraping pipeline core: tasks, outcomes,
// the bounded worker pool, the result aggregator, and the run controller
// that wires them together for a single run.
package scrape
