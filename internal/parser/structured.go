package parser

import (
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/coffersTech/nanocat/internal/model"
)

// CSVColumns is the column order shared by the csv input format and the
// csv output sink.
var CSVColumns = []string{"time", "level", "tag", "process", "thread", "message", "raw"}

// CSV parses one row in CSVColumns order.
type CSV struct{}

func (CSV) Name() string { return "csv" }

func (CSV) Parse(line string) (model.Record, bool) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = len(CSVColumns)
	row, err := r.Read()
	if err != nil {
		return model.Record{}, false
	}
	level, ok := model.ParseLevel(row[1])
	if !ok && !strings.EqualFold(row[1], "unknown") {
		return model.Record{}, false
	}
	rec := model.Record{
		Time:    row[0],
		Level:   level,
		Tag:     row[2],
		Process: row[3],
		Thread:  row[4],
		Message: row[5],
		Raw:     row[6],
	}
	if rec.Raw == "" {
		rec.Raw = line
	}
	return rec, true
}

// JSON parses one object per line. Common alternative key names are
// accepted for every field.
type JSON struct {
	pool *fastjson.ParserPool
}

func NewJSON() *JSON {
	return &JSON{pool: &fastjson.ParserPool{}}
}

func (j *JSON) Name() string { return "json" }

func (j *JSON) Parse(line string) (model.Record, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return model.Record{}, false
	}
	p := j.pool.Get()
	defer j.pool.Put(p)

	v, err := p.Parse(trimmed)
	if err != nil || v.Type() != fastjson.TypeObject {
		return model.Record{}, false
	}
	rec := model.Record{
		Time:    jsonField(v, "time", "timestamp", "ts"),
		Tag:     jsonField(v, "tag", "logger"),
		Process: jsonField(v, "process", "pid"),
		Thread:  jsonField(v, "thread", "tid"),
		Message: jsonField(v, "message", "msg"),
		Raw:     jsonField(v, "raw"),
		Level:   model.LevelUnknown,
	}
	if lvl := jsonField(v, "level", "severity"); lvl != "" {
		rec.Level, _ = model.ParseLevel(lvl)
	}
	if rec.Raw == "" {
		rec.Raw = line
	}
	return rec, true
}

func jsonField(v *fastjson.Value, keys ...string) string {
	for _, key := range keys {
		f := v.Get(key)
		if f == nil {
			continue
		}
		switch f.Type() {
		case fastjson.TypeString:
			return string(f.GetStringBytes())
		case fastjson.TypeNumber:
			if n, err := f.Int64(); err == nil {
				return strconv.FormatInt(n, 10)
			}
			return strconv.FormatFloat(f.GetFloat64(), 'f', -1, 64)
		case fastjson.TypeNull:
			continue
		default:
			return f.String()
		}
	}
	return ""
}
