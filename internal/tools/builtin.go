package tools

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"
)

// CurrentTimeArgs are the arguments of the current_time tool.
type CurrentTimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"IANA timezone name such as Asia/Shanghai; defaults to UTC"`
}

// NewCurrentTime returns the current_time tool. now may be nil.
func NewCurrentTime(now func() time.Time) (Tool, error) {
	if now == nil {
		now = time.Now
	}
	return NewFuncTool("current_time", "Returns the current date and time.",
		func(_ context.Context, args CurrentTimeArgs) (any, error) {
			loc := time.UTC
			if args.Timezone != "" {
				l, err := time.LoadLocation(args.Timezone)
				if err != nil {
					return nil, fmt.Errorf("unknown timezone %q", args.Timezone)
				}
				loc = l
			}
			t := now().In(loc)
			return map[string]string{
				"time":     t.Format(time.RFC3339),
				"weekday":  t.Weekday().String(),
				"timezone": loc.String(),
			}, nil
		})
}

// Builtin returns the tools shipped with replyd.
func Builtin() ([]Tool, error) {
	ct, err := NewCurrentTime(nil)
	if err != nil {
		return nil, err
	}
	return []Tool{ct}, nil
}
