package source

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"etl-notifier/internal/model"
)

// Column names produced by the notifier queries.
const (
	colAccountName          = "AccountName"
	colEnvironment          = "Environment"
	colStartTime            = "StartTime"
	colErrorMessage         = "errorMessage"
	colPipelineURL          = "PipelineURL"
	colRequiresConfirmation = "requiresConfirmation"
)

// ExtractRecords maps rows to records. One malformed row fails the batch.
func ExtractRecords(rows []Row) ([]model.Record, error) {
	out := make([]model.Record, 0, len(rows))
	for i, row := range rows {
		r, err := ExtractRecord(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// ExtractRecord maps one row to a record.
func ExtractRecord(row Row) (model.Record, error) {
	account, err := requiredStr(row, colAccountName)
	if err != nil {
		return model.Record{}, err
	}
	env, err := requiredStr(row, colEnvironment)
	if err != nil {
		return model.Record{}, err
	}
	v, ok := row[colStartTime]
	if !ok || v == nil {
		return model.Record{}, fmt.Errorf("missing column %s", colStartTime)
	}
	start, err := toTime(v)
	if err != nil {
		return model.Record{}, fmt.Errorf("column %s: %w", colStartTime, err)
	}
	confirm, err := toBool(row[colRequiresConfirmation])
	if err != nil {
		return model.Record{}, fmt.Errorf("column %s: %w", colRequiresConfirmation, err)
	}
	return model.Record{
		AccountName:          account,
		Environment:          env,
		StartTime:            start,
		ErrorMessage:         pickStr(row, colErrorMessage),
		URL:                  pickStr(row, colPipelineURL),
		RequiresConfirmation: confirm,
	}, nil
}

func requiredStr(row Row, key string) (string, error) {
	v, ok := row[key]
	if !ok || v == nil {
		return "", fmt.Errorf("missing column %s", key)
	}
	return toStr(v), nil
}

// pickStr returns the first non-empty value among keys, trimmed.
func pickStr(row Row, keys ...string) string {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != nil {
			if s := strings.TrimSpace(toStr(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

func toStr(v any) string {
	switch vv := v.(type) {
	case string:
		return vv
	case []byte:
		return string(vv)
	case time.Time:
		return model.FormatStartTime(vv)
	default:
		return fmt.Sprint(vv)
	}
}

func toTime(v any) (time.Time, error) {
	switch vv := v.(type) {
	case time.Time:
		return vv, nil
	case string:
		return parseTimeFlexible(vv)
	case []byte:
		return parseTimeFlexible(string(vv))
	case int64:
		return time.Unix(vv, 0).UTC(), nil
	case int:
		return time.Unix(int64(vv), 0).UTC(), nil
	case float64:
		return time.Unix(int64(vv), 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %T", v)
	}
}

func toBool(v any) (bool, error) {
	switch vv := v.(type) {
	case nil:
		return false, nil
	case bool:
		return vv, nil
	case int64:
		return vv != 0, nil
	case int:
		return vv != 0, nil
	case float64:
		return vv != 0, nil
	case []byte:
		return toBool(string(vv))
	case string:
		s := strings.TrimSpace(vv)
		if s == "" {
			return false, nil
		}
		return strconv.ParseBool(s)
	default:
		return false, fmt.Errorf("unsupported bool value %T", v)
	}
}

// Parse timestamps in the layouts SQL drivers hand back as text, plus RFC3339 and epoch seconds.
func parseTimeFlexible(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if len(s) >= 10 && isDigits(s) {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return time.Unix(sec, 0).UTC(), nil
		}
	}
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time: %s", s)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
