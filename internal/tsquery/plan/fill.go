package plan

import "github.com/flowmetrics/qpipe/internal/tsquery/kernel"

// parseFill maps the wire fill-policy name onto kernel.FillPolicy, defaulting
// to FillNotANumber (the spec's default for an unset policy).
func parseFill(name string) kernel.Filler {
	switch name {
	case "null":
		return kernel.Filler{Policy: kernel.FillNull}
	case "zero":
		return kernel.Filler{Policy: kernel.FillZero}
	case "previous_only":
		return kernel.Filler{Policy: kernel.FillPreviousOnly}
	case "next_only":
		return kernel.Filler{Policy: kernel.FillNextOnly}
	case "prefer_previous":
		return kernel.Filler{Policy: kernel.FillPreferPrevious}
	case "prefer_next":
		return kernel.Filler{Policy: kernel.FillPreferNext}
	case "none":
		return kernel.Filler{Policy: kernel.FillNone}
	case "nan", "":
		return kernel.Filler{Policy: kernel.FillNotANumber}
	default:
		return kernel.Filler{Policy: kernel.FillNotANumber}
	}
}

func parseCalendar(name string) kernel.CalendarUnit {
	switch name {
	case "day":
		return kernel.CalendarDay
	case "week":
		return kernel.CalendarWeek
	case "month":
		return kernel.CalendarMonth
	default:
		return kernel.CalendarNone
	}
}
