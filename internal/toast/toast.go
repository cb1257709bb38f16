// Package toast builds the transient notifications shown after dashboard
// actions, including the upload progress toast.
package toast

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// AutoHide is how long a finished toast stays on screen.
const AutoHide = 3 * time.Second

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Icon is the icon class shown next to a toast of this kind.
func (k Kind) Icon() string {
	switch k {
	case KindError:
		return "fa-solid fa-times-circle"
	case KindInfo:
		return "fa-solid fa-info-circle"
	default:
		return "fa-solid fa-check-circle"
	}
}

type Toast struct {
	Kind     Kind
	Message  string
	AutoHide time.Duration
}

func Success(msg string) Toast { return Toast{Kind: KindSuccess, Message: msg, AutoHide: AutoHide} }
func Error(msg string) Toast   { return Toast{Kind: KindError, Message: msg, AutoHide: AutoHide} }
func Info(msg string) Toast    { return Toast{Kind: KindInfo, Message: msg, AutoHide: AutoHide} }

// MessageError is implemented by errors that carry a message meant for the
// user, such as a failure payload from the admin API.
type MessageError interface {
	error
	UserMessage() string
}

// FromError shows the server's message when err carries one and fallback
// otherwise.
func FromError(err error, fallback string) Toast {
	var me MessageError
	if errors.As(err, &me) && strings.TrimSpace(me.UserMessage()) != "" {
		return Error(me.UserMessage())
	}
	if fallback == "" && err != nil {
		fallback = capitalize(err.Error())
	}
	return Error(fallback)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// FromQuery reads a toast carried across a redirect in ?message= or
// ?error=.
func FromQuery(v url.Values) (Toast, bool) {
	if msg := strings.TrimSpace(v.Get("error")); msg != "" {
		return Error(msg), true
	}
	if msg := strings.TrimSpace(v.Get("message")); msg != "" {
		return Success(msg), true
	}
	if msg := strings.TrimSpace(v.Get("info")); msg != "" {
		return Info(msg), true
	}
	return Toast{}, false
}

// Redirect appends t to target as a query parameter.
func Redirect(target string, t Toast) string {
	key := "message"
	switch t.Kind {
	case KindError:
		key = "error"
	case KindInfo:
		key = "info"
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + key + "=" + url.QueryEscape(t.Message)
}

// Progress is a progress toast. A negative Percent means indeterminate.
type Progress struct {
	Message   string
	Percent   int
	SentKB    string
	TotalKB   string
	Remaining string
	Done      bool
}

func (p Progress) Indeterminate() bool { return p.Percent < 0 }

// Indeterminate is a spinner toast with no known total.
func Indeterminate(msg string) Progress {
	return Progress{Message: msg, Percent: -1}
}

// Measure computes upload progress after sent of total bytes in elapsed.
func Measure(msg string, sent, total int64, elapsed time.Duration) Progress {
	if total <= 0 {
		return Indeterminate(msg)
	}
	if sent > total {
		sent = total
	}
	p := Progress{
		Message: msg,
		Percent: int(math.Round(float64(sent) / float64(total) * 100)),
		SentKB:  fmt.Sprintf("%.1f KB", float64(sent)/1024),
		TotalKB: fmt.Sprintf("%.1f KB", float64(total)/1024),
		Done:    sent == total,
	}
	if elapsed > 0 && sent > 0 {
		rate := float64(sent) / elapsed.Seconds()
		p.Remaining = RemainingLabel(float64(total-sent) / rate)
	}
	return p
}

// RemainingLabel formats an estimate in seconds.
func RemainingLabel(seconds float64) string {
	switch {
	case seconds < 1:
		return "Almost done..."
	case seconds < 60:
		return fmt.Sprintf("%d sec remaining", int(math.Ceil(seconds)))
	default:
		mins := int(seconds / 60)
		secs := int(math.Ceil(math.Mod(seconds, 60)))
		return fmt.Sprintf("%dm %ds remaining", mins, secs)
	}
}
