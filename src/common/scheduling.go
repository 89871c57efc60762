package common

import (
	"fmt"
	"log"
	"time"

	"promarket/src/config"
	"promarket/src/models"
	"promarket/src/types"

	"gorm.io/gorm"
)

// Duration is a unit-aware span: hours add wall-clock time, days add
// calendar days preserving the time-of-day.
type Duration struct {
	Value uint
	Unit  types.DurationUnit
}

func (d Duration) IsZero() bool {
	return d.Value == 0
}

// AddDuration applies d to t. Day arithmetic goes through AddDate so a
// 09:00 start stays a 09:00 end across DST changes.
func AddDuration(t time.Time, d Duration) time.Time {
	if d.Value == 0 {
		return t
	}
	if d.Unit == types.UNIT_HOURS {
		return t.Add(time.Duration(d.Value) * time.Hour)
	}
	return t.AddDate(0, 0, int(d.Value))
}

// EarliestBookableDate is the first instant a project can start given
// its preparation lead time.
func EarliestBookableDate(now time.Time, preparation Duration) time.Time {
	return AddDuration(now, preparation)
}

// ScheduleWindow is a computed reservation: execution covers the work
// itself, buffer extends the hold for cleanup and travel. The full
// reserved span is [Start, BufferEnd].
type ScheduleWindow struct {
	Start        time.Time          `json:"start"`
	ExecutionEnd time.Time          `json:"execution_end"`
	BufferStart  time.Time          `json:"buffer_start"`
	BufferEnd    time.Time          `json:"buffer_end"`
	BufferUnit   types.DurationUnit `json:"buffer_unit,omitempty"`
}

// ReservedEnd is the last instant of the reservation, buffer included.
func (w ScheduleWindow) ReservedEnd() time.Time {
	if w.BufferEnd.After(w.ExecutionEnd) {
		return w.BufferEnd
	}
	return w.ExecutionEnd
}

// HasBuffer reports whether the buffer extends past the execution end.
func (w ScheduleWindow) HasBuffer() bool {
	return w.BufferEnd.After(w.ExecutionEnd)
}

// ComputeScheduleWindow derives the full window from a start instant.
// A zero buffer collapses the buffer bounds onto the execution end.
func ComputeScheduleWindow(start time.Time, execution Duration, buffer Duration) ScheduleWindow {
	executionEnd := AddDuration(start, execution)
	bufferEnd := AddDuration(executionEnd, buffer)
	return ScheduleWindow{
		Start:        start,
		ExecutionEnd: executionEnd,
		BufferStart:  executionEnd,
		BufferEnd:    bufferEnd,
		BufferUnit:   buffer.Unit,
	}
}

// Overlaps is the single overlap rule used everywhere: strict interval
// overlap, so windows that merely touch at a boundary do not conflict.
// Back-to-back scheduling works because the buffer is already part of
// the reservation window.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Interval is a generic busy range used for conflict checks.
type Interval struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason,omitempty"`
}

// FindConflict returns the first busy interval overlapping the
// reservation window, or nil when the window is free.
func FindConflict(w ScheduleWindow, busy []Interval) *Interval {
	for i := range busy {
		if Overlaps(w.Start, w.ReservedEnd(), busy[i].Start, busy[i].End) {
			return &busy[i]
		}
	}
	return nil
}

// ScheduleRequest carries everything needed to validate a customer's
// chosen start against a project's configuration.
type ScheduleRequest struct {
	ProjectID    uint
	VariantIndex *int
	Start        time.Time
	StartTime    *string
	// Customer-declared unavailability, honored in addition to the
	// resource's blocked ranges.
	OwnBlocked []Interval
	// Now overrides the clock in tests.
	Now *time.Time
}

// ScheduleResult is the outcome the state machine persists onto the
// booking before reserving blocks.
type ScheduleResult struct {
	Window    ScheduleWindow
	Resources []uint
	StartTime *string
	EndTime   *string
}

// durationsFor resolves the execution/buffer/preparation profile,
// honoring a variant override when an index is given.
func durationsFor(project *models.Project, variantIndex *int) (execution, buffer, preparation Duration, err error) {
	execution = Duration{Value: project.ExecutionDuration, Unit: project.ExecutionDurationUnit}
	buffer = Duration{Value: project.BufferDuration, Unit: project.BufferDurationUnit}
	preparation = Duration{Value: project.PreparationDuration, Unit: project.PreparationDurationUnit}
	if variantIndex == nil {
		return
	}
	idx := *variantIndex
	if idx < 0 || idx >= len(project.Variants) {
		err = types.NewValidationError("project %d has no variant at index %d", project.ID, idx)
		return
	}
	v := project.Variants[idx]
	execution = Duration{Value: v.ExecutionDuration, Unit: v.ExecutionDurationUnit}
	if v.BufferDuration > 0 {
		buffer = Duration{Value: v.BufferDuration, Unit: v.BufferDurationUnit}
	}
	return
}

// candidateResources resolves the schedulable resource ids for a
// project: the explicitly assigned list (deduplicated, verified to be
// the professional's employees) or the owner's own resource record.
func candidateResources(tx *gorm.DB, project *models.Project) ([]uint, error) {
	seen := map[uint]bool{}
	ids := []uint{}
	for _, raw := range project.AssignedResources {
		n, ok := raw.(float64)
		if !ok || n <= 0 {
			continue
		}
		id := uint(n)
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		var count int64
		if err := tx.Model(&models.Employee{}).
			Where("id IN ? AND professional_id = ?", ids, project.ProfessionalID).
			Count(&count).Error; err != nil {
			return nil, err
		}
		if count != int64(len(ids)) {
			return nil, types.NewValidationError("project %d references unknown resources", project.ID)
		}
		return ids, nil
	}
	var pro models.Professional
	if err := tx.First(&pro, project.ProfessionalID).Error; err != nil {
		return nil, err
	}
	if pro.OwnResourceID == nil {
		return nil, types.NewValidationError("professional %d has no schedulable resource", pro.ID)
	}
	return []uint{*pro.OwnResourceID}, nil
}

// resourceBusyIntervals merges a resource's blocked ranges with the
// windows of other active bookings already assigned to it. Blocked
// ranges cover bookings that reached booked, so the second query only
// matters for bookings that hold a window but have not reserved yet.
func resourceBusyIntervals(tx *gorm.DB, resourceID uint) ([]Interval, error) {
	ranges, err := ListBlockedRanges(tx, resourceID)
	if err != nil {
		return nil, err
	}
	busy := make([]Interval, 0, len(ranges))
	for _, r := range ranges {
		busy = append(busy, Interval{Start: r.Start, End: r.End, Reason: r.Reason})
	}
	var bookings []models.Booking
	if err := tx.
		Where("status IN ?", []types.BookingStatus{
			types.BOOKING_QUOTE_ACCEPTED,
			types.BOOKING_PAYMENT_PENDING,
			types.BOOKING_BOOKED,
			types.BOOKING_IN_PROGRESS,
		}).
		Where("assigned_team_members @> ?", fmt.Sprintf("[%d]", resourceID)).
		Where("scheduled_start_date IS NOT NULL").
		Find(&bookings).Error; err != nil {
		return nil, err
	}
	for _, b := range bookings {
		if b.ScheduledStartDate == nil {
			continue
		}
		end := b.ScheduledStartDate
		if b.ScheduledExecutionEndDate != nil {
			end = b.ScheduledExecutionEndDate
		}
		if b.ScheduledBufferEndDate != nil && b.ScheduledBufferEndDate.After(*end) {
			end = b.ScheduledBufferEndDate
		}
		busy = append(busy, Interval{
			Start:  *b.ScheduledStartDate,
			End:    *end,
			Reason: BookingBlockTag(b.ID),
		})
	}
	return busy, nil
}

// BuildProjectSchedule validates a requested start against the project
// configuration and resource availability and returns the window plus
// the resources to assign. It does not persist anything.
func BuildProjectSchedule(tx *gorm.DB, req *ScheduleRequest) (*ScheduleResult, error) {
	var project models.Project
	if err := tx.First(&project, req.ProjectID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, types.NewValidationError("project %d not found", req.ProjectID)
		}
		return nil, err
	}
	if project.Status != types.PROJECT_PUBLISHED {
		return nil, types.NewValidationError("project %d is not open for booking", project.ID)
	}
	execution, buffer, preparation, err := durationsFor(&project, req.VariantIndex)
	if err != nil {
		return nil, err
	}
	if execution.IsZero() {
		return nil, types.NewValidationError("project %d has no execution duration configured", project.ID)
	}

	start := req.Start
	var startTime *string
	if req.StartTime != nil {
		tod, err := time.Parse(config.TIME_OF_DAY_FORMAT, *req.StartTime)
		if err != nil {
			return nil, types.NewValidationError("invalid start time: %s", *req.StartTime)
		}
		start = time.Date(start.Year(), start.Month(), start.Day(), tod.Hour(), tod.Minute(), 0, 0, start.Location())
		startTime = req.StartTime
	}

	now := time.Now()
	if req.Now != nil {
		now = *req.Now
	}
	earliest := EarliestBookableDate(now, preparation)
	if start.Before(earliest) {
		return nil, types.NewValidationError(
			"requested start %s is earlier than the earliest bookable date %s",
			start.Format(config.TIME_PARSE_FORMAT), earliest.Format(config.TIME_PARSE_FORMAT))
	}

	window := ComputeScheduleWindow(start, execution, buffer)
	if conflict := FindConflict(window, req.OwnBlocked); conflict != nil {
		return nil, types.NewConflictError(
			fmt.Sprintf("requested window overlaps your own blocked range %s to %s",
				conflict.Start.Format(config.DATE_PARSE_FORMAT), conflict.End.Format(config.DATE_PARSE_FORMAT)),
			"")
	}

	candidates, err := candidateResources(tx, &project)
	if err != nil {
		return nil, err
	}
	minResources := project.MinResources
	if minResources == 0 {
		minResources = 1
	}

	free := []uint{}
	var firstConflict *Interval
	for _, rid := range candidates {
		busy, err := resourceBusyIntervals(tx, rid)
		if err != nil {
			return nil, err
		}
		if conflict := FindConflict(window, busy); conflict != nil {
			if firstConflict == nil {
				firstConflict = conflict
			}
			continue
		}
		free = append(free, rid)
		if uint(len(free)) == minResources {
			break
		}
	}
	if uint(len(free)) < minResources {
		reason := fmt.Sprintf("no resource available for window %s to %s",
			window.Start.Format(config.TIME_PARSE_FORMAT), window.ReservedEnd().Format(config.TIME_PARSE_FORMAT))
		if firstConflict != nil {
			reason = fmt.Sprintf("%s; conflicts with %s to %s",
				reason, firstConflict.Start.Format(config.TIME_PARSE_FORMAT), firstConflict.End.Format(config.TIME_PARSE_FORMAT))
		}
		log.Printf("[Scheduling] %s\n", reason)
		return nil, types.NewConflictError(reason, "")
	}

	result := &ScheduleResult{
		Window:    window,
		Resources: free,
		StartTime: startTime,
	}
	if startTime != nil && execution.Unit == types.UNIT_HOURS {
		endTime := window.ExecutionEnd.Format(config.TIME_OF_DAY_FORMAT)
		result.EndTime = &endTime
	}
	return result, nil
}

// ApplyScheduleToBooking writes the computed window and assignment onto
// the booking struct. The caller persists it.
func ApplyScheduleToBooking(booking *models.Booking, res *ScheduleResult) {
	w := res.Window
	booking.ScheduledStartDate = &w.Start
	booking.ScheduledExecutionEndDate = &w.ExecutionEnd
	if w.HasBuffer() {
		booking.ScheduledBufferStartDate = &w.BufferStart
		booking.ScheduledBufferEndDate = &w.BufferEnd
		unit := w.BufferUnit
		booking.ScheduledBufferUnit = &unit
	} else {
		booking.ScheduledBufferStartDate = nil
		booking.ScheduledBufferEndDate = nil
		booking.ScheduledBufferUnit = nil
	}
	booking.ScheduledStartTime = res.StartTime
	booking.ScheduledEndTime = res.EndTime
	members := types.JSONBArray{}
	for _, id := range res.Resources {
		members = append(members, float64(id))
	}
	booking.AssignedTeamMembers = members
}

// BookingWindow rebuilds the reservation window from a booking's
// persisted schedule fields.
func BookingWindow(b *models.Booking) (*ScheduleWindow, bool) {
	if b.ScheduledStartDate == nil || b.ScheduledExecutionEndDate == nil {
		return nil, false
	}
	w := ScheduleWindow{
		Start:        *b.ScheduledStartDate,
		ExecutionEnd: *b.ScheduledExecutionEndDate,
		BufferStart:  *b.ScheduledExecutionEndDate,
		BufferEnd:    *b.ScheduledExecutionEndDate,
	}
	if b.ScheduledBufferStartDate != nil {
		w.BufferStart = *b.ScheduledBufferStartDate
	}
	if b.ScheduledBufferEndDate != nil {
		w.BufferEnd = *b.ScheduledBufferEndDate
	}
	if b.ScheduledBufferUnit != nil {
		w.BufferUnit = *b.ScheduledBufferUnit
	}
	return &w, true
}

// BookingResourceIDs decodes the assigned team member ids.
func BookingResourceIDs(b *models.Booking) []uint {
	ids := []uint{}
	seen := map[uint]bool{}
	for _, raw := range b.AssignedTeamMembers {
		n, ok := raw.(float64)
		if !ok || n <= 0 {
			continue
		}
		id := uint(n)
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
