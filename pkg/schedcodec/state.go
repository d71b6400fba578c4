package schedcodec

// Frequency is the recurrence class of a schedule.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// Meridiem is the 12-hour clock half.
type Meridiem string

const (
	AM Meridiem = "am"
	PM Meridiem = "pm"
)

// Quarter-hour minute values offered by the editor.
const (
	Minute00 = "00"
	Minute15 = "15"
	Minute30 = "30"
	Minute45 = "45"
)

// MaxMonthDay is the highest day-of-month a schedule may use, so that every
// month contains it.
const MaxMonthDay = 28

// ScheduleState is the structured form of a recurring schedule.
//
// All fields are always populated. Fields that do not apply to Frequency are
// kept as-is and ignored by BuildCron, so switching frequency back and forth
// does not lose them.
type ScheduleState struct {
	Frequency Frequency `json:"frequency"`
	DayOfWeek int       `json:"dayOfWeek"` // 1=Monday .. 7=Sunday (weekly)
	MonthDay  int       `json:"monthDay"`  // 1..28 (monthly)
	Hour      int       `json:"hour"`      // 1..12
	Minute    string    `json:"minute"`    // "00" | "15" | "30" | "45"
	AMPM      Meridiem  `json:"ampm"`
}

// DefaultState is returned by ParseCron for input it cannot interpret.
func DefaultState() ScheduleState {
	return ScheduleState{
		Frequency: Daily,
		DayOfWeek: 1,
		MonthDay:  1,
		Hour:      7,
		Minute:    Minute00,
		AMPM:      AM,
	}
}

// Valid reports whether every field is inside its documented domain.
func (s ScheduleState) Valid() bool {
	switch s.Frequency {
	case Daily, Weekly, Monthly:
	default:
		return false
	}
	if s.DayOfWeek < 1 || s.DayOfWeek > 7 {
		return false
	}
	if s.MonthDay < 1 || s.MonthDay > MaxMonthDay {
		return false
	}
	if s.Hour < 1 || s.Hour > 12 {
		return false
	}
	switch s.Minute {
	case Minute00, Minute15, Minute30, Minute45:
	default:
		return false
	}
	return s.AMPM == AM || s.AMPM == PM
}
