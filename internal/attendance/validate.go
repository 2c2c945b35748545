package attendance

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// SlotInput is a timetable slot before it gets an id. Imported tuples from the
// recognizer use the same shape.
type SlotInput struct {
	SubjectName string `json:"subject_name" validate:"required,max=120"`
	Day         int    `json:"day" validate:"min=0,max=6"`
	StartTime   string `json:"start_time" validate:"required,clock"`
	EndTime     string `json:"end_time" validate:"required,clock"`
	Faculty     string `json:"faculty,omitempty" validate:"max=120"`
	Color       string `json:"color,omitempty" validate:"omitempty,hexcolor"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	err := v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(ClockLayout, fl.Field().String())
		return err == nil
	})
	if err != nil {
		panic(fmt.Sprintf("register clock validation: %v", err))
	}
	return v
}

func (in *SlotInput) normalize() {
	in.SubjectName = strings.TrimSpace(in.SubjectName)
	in.Faculty = strings.TrimSpace(in.Faculty)
	in.StartTime = strings.TrimSpace(in.StartTime)
	in.EndTime = strings.TrimSpace(in.EndTime)
	in.Color = strings.TrimSpace(in.Color)
}

// canonicalClock rewrites a valid clock such as "9:05" as "09:05".
func canonicalClock(v string) string {
	t, err := time.Parse(ClockLayout, v)
	if err != nil {
		return v
	}
	return t.Format(ClockLayout)
}

// Validate checks the slot shape and that it ends after it starts.
func (in SlotInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidSlot, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidSlot, err)
	}
	start, _ := time.Parse(ClockLayout, in.StartTime)
	end, _ := time.Parse(ClockLayout, in.EndTime)
	if !end.After(start) {
		return fmt.Errorf("%w: end_time must be after start_time", ErrInvalidSlot)
	}
	return nil
}
