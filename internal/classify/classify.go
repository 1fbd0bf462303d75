// Package classify decides whether drawing labels name security equipment.
//
// Matching is a case-insensitive substring test using Unicode case folding,
// so "Camera-01" matches the keyword "camera" and CJK keywords match as-is.
package classify

import (
	"strings"

	"golang.org/x/text/cases"
)

// DefaultSecurityKeywords covers the device categories the analyzer reports:
// attendance, access control, consumption terminals, barriers, cameras, card
// readers, electric locks, door contacts, turnstiles, visitor terminals,
// fingerprint and face terminals, parking locks, patrol points and alarms.
// RVVP is the shielded signal cable these systems are wired with.
var DefaultSecurityKeywords = []string{
	"考勤", "门禁", "消费机", "道闸", "摄像机",
	"读卡器", "电锁", "门磁", "闸机", "访客机",
	"指纹机", "人脸机", "车位锁", "巡更点", "报警",
	"attendance", "access control", "card reader", "camera", "turnstile",
	"barrier gate", "electric lock", "door sensor", "alarm", "RVVP",
}

// DefaultWiringKeywords marks annotations that describe cabling.
var DefaultWiringKeywords = []string{"线", "缆", "wire", "cable", "RVVP", "RVV"}

// Classifier holds folded keyword sets. It is immutable and safe for
// concurrent use.
type Classifier struct {
	security []string
	wiring   []string
}

// New builds a Classifier. Empty keywords are dropped.
func New(securityKeywords, wiringKeywords []string) *Classifier {
	return &Classifier{
		security: foldAll(securityKeywords),
		wiring:   foldAll(wiringKeywords),
	}
}

// Default returns a Classifier over the default keyword sets.
func Default() *Classifier {
	return New(DefaultSecurityKeywords, DefaultWiringKeywords)
}

// IsSecurityRelated reports whether text contains any security keyword.
func (c *Classifier) IsSecurityRelated(text string) bool {
	return containsAny(fold(text), c.security)
}

// IsWiringLabel reports whether text contains any cable keyword. Callers
// apply it only to text that already passed IsSecurityRelated.
func (c *Classifier) IsWiringLabel(text string) bool {
	return containsAny(fold(text), c.wiring)
}

func containsAny(s string, keywords []string) bool {
	if s == "" {
		return false
	}
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// fold allocates a fresh Caser per call; Casers carry state and must not be
// shared between goroutines.
func fold(s string) string {
	return cases.Fold().String(s)
}

func foldAll(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, fold(k))
		}
	}
	return out
}
