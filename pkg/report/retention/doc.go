// Package retention removes old capture records.
//
// A Pruner deletes records older than RetentionDays and then trims the
// store down to MaxRecords, oldest first. Deleted records can be archived
// as JSON files beforehand. A Scheduler runs the Pruner on a cron schedule.
package retention
