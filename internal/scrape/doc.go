// Package scrape defines the core job, record, and driver types shared by the
// registry, runner, pipeline, and providers of the vacancies scraper.
package scrape
