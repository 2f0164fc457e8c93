package config

import (
	"testing"
	"time"
)

func TestValidCronExprEmptyIsValid(t *testing.T) {
	if !ValidCronExpr("") {
		t.Fatal("empty expression should be treated as valid (interval-only gating)")
	}
}

func TestValidCronExprRejectsGarbage(t *testing.T) {
	if ValidCronExpr("not a cron expression") {
		t.Fatal("expected garbage cron expression to be invalid")
	}
}

func TestValidCronExprAcceptsStandardFiveField(t *testing.T) {
	if !ValidCronExpr("*/5 * * * *") {
		t.Fatal("expected standard five-field expression to be valid")
	}
}

func TestReflectionWindowDueEmptyAlwaysDue(t *testing.T) {
	due, err := ReflectionWindowDue("", time.Now())
	if err != nil {
		t.Fatalf("ReflectionWindowDue: %v", err)
	}
	if !due {
		t.Fatal("empty cron expression should always be due")
	}
}
