// Package schedcodec converts between the UI-facing ScheduleState and the
// 5-field cron string stored as a trigger's system of record.
//
// The codec only ever produces and consumes a restricted cron subset:
//
//	minute hour day-of-month month day-of-week
//
// with a single minute and hour, month always "*", and at most one of
// day-of-month / day-of-week restricted.
//
// BuildCron, ParseCron and DescribeSchedule never fail: malformed input
// degrades to DefaultState or to the "Local" timezone label. Validate and
// NextRuns are the strict companions used on write paths.
package schedcodec
