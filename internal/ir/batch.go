package ir

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// BatchFile is the on-disk form of a task batch. YAML and JSON are both
// accepted since JSON is a YAML subset.
type BatchFile struct {
	Version string      `yaml:"version"`
	Tasks   []BatchTask `yaml:"tasks"`
}

// BatchTask is one task as written in a batch file. Payload tables map
// table name to rows.
type BatchTask struct {
	Seq            int64                       `yaml:"seq"`
	TaskID         int64                       `yaml:"task_id"`
	Type           string                      `yaml:"type"`
	SiteName       string                      `yaml:"site"`
	ObjectType     string                      `yaml:"object_type"`
	ObjectCodeName string                      `yaml:"code_name"`
	NodeAliasPath  string                      `yaml:"alias_path"`
	CultureCode    string                      `yaml:"culture"`
	ClassName      string                      `yaml:"class_name"`
	Title          string                      `yaml:"title"`
	Payload        map[string][]map[string]any `yaml:"payload"`
}

// DecodeBatch reads a batch file and returns its tasks sorted by Seq.
// Tasks without a seq are numbered by file position.
func DecodeBatch(r io.Reader) ([]Task, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file BatchFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	tasks, err := file.ToTasks()
	if err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return tasks, nil
}

// ToTasks converts the file's tasks, sorted by Seq. Tasks without a seq
// are numbered by position.
func (file BatchFile) ToTasks() ([]Task, error) {
	if file.Version != "" && file.Version != BatchVersion {
		return nil, fmt.Errorf("unsupported version %q", file.Version)
	}

	tasks := make([]Task, 0, len(file.Tasks))
	for i, bt := range file.Tasks {
		task, err := bt.toTask()
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		if task.Seq == 0 {
			task.Seq = int64(i + 1)
		}
		tasks = append(tasks, task)
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Seq < tasks[j].Seq
	})
	for i := 1; i < len(tasks); i++ {
		if tasks[i].Seq == tasks[i-1].Seq {
			return nil, fmt.Errorf("duplicate seq %d", tasks[i].Seq)
		}
	}
	return tasks, nil
}

func (bt BatchTask) toTask() (Task, error) {
	tt, err := ParseTaskType(bt.Type)
	if err != nil {
		return Task{}, err
	}
	if !tt.Valid() {
		return Task{}, fmt.Errorf("task type is required")
	}

	tables := make([]Table, 0, len(bt.Payload))
	for name, raw := range bt.Payload {
		rows := make([]Row, 0, len(raw))
		for i, m := range raw {
			row, err := RowFromMap(m)
			if err != nil {
				return Task{}, fmt.Errorf("table %s row %d: %w", name, i, err)
			}
			rows = append(rows, row)
		}
		tables = append(tables, Table{Name: name, Rows: rows})
	}

	return Task{
		Seq:            bt.Seq,
		TaskID:         bt.TaskID,
		Type:           tt,
		SiteName:       bt.SiteName,
		ObjectType:     bt.ObjectType,
		ObjectCodeName: bt.ObjectCodeName,
		NodeAliasPath:  bt.NodeAliasPath,
		CultureCode:    bt.CultureCode,
		ClassName:      bt.ClassName,
		Title:          bt.Title,
		Payload:        NewPayload(tables...),
	}, nil
}
