package geonames

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParsePolicy：行解析策略
// 背景：上游不是经过校验的 API，偶有格式漂移；默认容错，严格模式用于测试与数据质量排查。
type ParsePolicy int

const (
	// ParseTolerant：无法解析的字段回落为零值，行照常产出
	ParseTolerant ParsePolicy = iota
	// ParseStrict：遇到第一条异常行即返回 *RowError
	ParseStrict
)

// 上游 cities500.txt / modifications-*.txt 的列序
const (
	colID = iota
	colName
	colASCIIName
	colAlternateNames
	colLatitude
	colLongitude
	colFeatureClass
	colFeatureCode
	colCountryCode
	colCC2
	colAdmin1
	colAdmin2
	colAdmin3
	colAdmin4
	colPopulation
	colElevation
	colDEM
	colTimezone
	colModified
	placeColumns
)

// deletes-*.txt 的列序
const (
	colDelID = iota
	colDelName
	colDelComment
	deletionColumns
)

const dateLayout = "2006-01-02"

// ParseStats：一次解析的行数与异常行数
type ParseStats struct {
	Rows      int
	Malformed int
}

// RowError：严格模式下的行级错误
type RowError struct {
	Line  int
	Field string
	Err   error
}

func (e *RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d: field %s: %v", e.Line, e.Field, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

var errEmptyID = errors.New("empty identifier")

// row：单行字段读取器，记录首个异常而不中断读取
type row struct {
	line   int
	fields []string
	err    *RowError
}

func (r *row) fail(field string, err error) {
	if r.err == nil {
		r.err = &RowError{Line: r.line, Field: field, Err: err}
	}
}

func (r *row) text(i int) string {
	if i < len(r.fields) {
		return r.fields[i]
	}
	return ""
}

func (r *row) id(i int, field string) int64 {
	if strings.TrimSpace(r.text(i)) == "" {
		r.fail(field, errEmptyID)
		return 0
	}
	return r.integer(i, field)
}

// 空字段视为缺省值而非异常（上游 elevation 等列常为空）
func (r *row) integer(i int, field string) int64 {
	s := strings.TrimSpace(r.text(i))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		r.fail(field, err)
		return 0
	}
	return v
}

func (r *row) smallInt(i int, field string) int { return int(r.integer(i, field)) }

func (r *row) float(i int, field string) float64 {
	s := strings.TrimSpace(r.text(i))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.fail(field, err)
		return 0
	}
	return v
}

func (r *row) date(i int, field string) time.Time {
	s := strings.TrimSpace(r.text(i))
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		r.fail(field, err)
		return time.Time{}
	}
	return t
}

func (r *row) list(i int) []string {
	s := r.text(i)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// eachRow：按行切分制表符字段；无表头，空行跳过
func eachRow(data []byte, want int, fn func(r *row)) error {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if text == "" {
			continue
		}
		r := &row{line: line, fields: strings.Split(text, "\t")}
		if len(r.fields) != want {
			r.fail("", fmt.Errorf("expected %d fields, got %d", want, len(r.fields)))
		}
		fn(r)
	}
	return sc.Err()
}

// ParsePlaces：解析地名行
// 返回：容错模式下所有非空行都会产出记录；严格模式遇到异常行返回 *RowError。
func ParsePlaces(data []byte, policy ParsePolicy) ([]PlaceRecord, ParseStats, error) {
	var stats ParseStats
	var out []PlaceRecord
	var strictErr error
	err := eachRow(data, placeColumns, func(r *row) {
		if strictErr != nil {
			return
		}
		p := PlaceRecord{
			ID:             r.id(colID, "geonameid"),
			Name:           r.text(colName),
			ASCIIName:      r.text(colASCIIName),
			AlternateNames: r.list(colAlternateNames),
			Latitude:       r.float(colLatitude, "latitude"),
			Longitude:      r.float(colLongitude, "longitude"),
			FeatureClass:   r.text(colFeatureClass),
			FeatureCode:    r.text(colFeatureCode),
			CountryCode:    r.text(colCountryCode),
			CC2:            r.list(colCC2),
			Admin1Code:     r.text(colAdmin1),
			Admin2Code:     r.text(colAdmin2),
			Admin3Code:     r.text(colAdmin3),
			Admin4Code:     r.text(colAdmin4),
			Population:     r.integer(colPopulation, "population"),
			Elevation:      r.smallInt(colElevation, "elevation"),
			DEM:            r.smallInt(colDEM, "dem"),
			Timezone:       r.text(colTimezone),
			ModifiedAt:     r.date(colModified, "modification date"),
		}
		stats.Rows++
		if r.err != nil {
			stats.Malformed++
			if policy == ParseStrict {
				strictErr = r.err
				return
			}
		}
		out = append(out, p)
	})
	if err != nil {
		return nil, stats, fmt.Errorf("failed to scan rows: %w", err)
	}
	if strictErr != nil {
		return nil, stats, strictErr
	}
	return out, stats, nil
}

// ParseDeletions：解析删除行（geonameid, name, comment）
func ParseDeletions(data []byte, policy ParsePolicy) ([]DeletionRecord, ParseStats, error) {
	var stats ParseStats
	var out []DeletionRecord
	var strictErr error
	err := eachRow(data, deletionColumns, func(r *row) {
		if strictErr != nil {
			return
		}
		d := DeletionRecord{
			ID:      r.id(colDelID, "geonameid"),
			Name:    r.text(colDelName),
			Comment: r.text(colDelComment),
		}
		stats.Rows++
		if r.err != nil {
			stats.Malformed++
			if policy == ParseStrict {
				strictErr = r.err
				return
			}
		}
		out = append(out, d)
	})
	if err != nil {
		return nil, stats, fmt.Errorf("failed to scan rows: %w", err)
	}
	if strictErr != nil {
		return nil, stats, strictErr
	}
	return out, stats, nil
}
