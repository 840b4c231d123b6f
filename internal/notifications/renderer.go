package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/bissquit/task-garden/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const timeLayout = "Jan 2, 2006 15:04 MST"

// Renderer renders task notifications into MarkdownV2 text.
// Every dynamic value in a template goes through the md function exactly once.
type Renderer struct {
	templates map[MessageType]*template.Template
	location  *time.Location
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithLocation sets the time zone used for rendered timestamps.
func WithLocation(loc *time.Location) RendererOption {
	return func(r *Renderer) {
		if loc != nil {
			r.location = loc
		}
	}
}

// NewRenderer creates a new renderer and loads all templates.
func NewRenderer(opts ...RendererOption) (*Renderer, error) {
	r := &Renderer{
		templates: make(map[MessageType]*template.Template),
		location:  time.UTC,
	}
	for _, opt := range opts {
		opt(r)
	}

	funcMap := template.FuncMap{
		"md":          markdown,
		"fileSize":    FormatFileSize,
		"statusLabel": statusLabel,
		"formatTime":  r.formatTime,
		"inc":         func(i int) int { return i + 1 },
		"hoursLabel":  hoursLabel,
		"changeLines": r.changeLines,
		"priority":    priorityLabel,
		"projectName": projectName,
	}

	for _, msg := range []MessageType{MessageTypeCreated, MessageTypeUpdated, MessageTypeReminder} {
		name := fmt.Sprintf("telegram_%s", msg)
		filename := fmt.Sprintf("templates/%s.tmpl", name)

		content, err := templatesFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", filename, err)
		}

		tmpl, err := template.New(name).Funcs(funcMap).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}

		r.templates[msg] = tmpl
	}

	return r, nil
}

// Render renders a notification payload into message text.
func (r *Renderer) Render(payload NotificationPayload) (string, error) {
	tmpl, ok := r.templates[payload.MessageType]
	if !ok {
		return "", fmt.Errorf("template not found: %s", payload.MessageType)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, payload); err != nil {
		return "", fmt.Errorf("execute template %s: %w", payload.MessageType, err)
	}

	return strings.TrimSpace(buf.String()), nil
}

// ChangeLine is one rendered row of the changes block. Values are unescaped.
type ChangeLine struct {
	Label string
	From  string
	To    string
	Note  string
}

func (r *Renderer) changeLines(c ChangeSet) []ChangeLine {
	lines := make([]ChangeLine, 0, c.Len())
	for _, field := range c.Fields() {
		line := ChangeLine{Label: fieldLabel(field)}
		switch field {
		case FieldTitle:
			line.From, line.To = c.Title.From, c.Title.To
		case FieldDescription:
			line.From, line.To = orNone(c.Description.From), orNone(c.Description.To)
		case FieldStatus:
			line.From, line.To = statusLabel(c.Status.From), statusLabel(c.Status.To)
		case FieldDueDate:
			line.From, line.To = orNone(r.formatTime(c.DueDate.From)), orNone(r.formatTime(c.DueDate.To))
		case FieldPriority:
			line.From, line.To = priorityLabel(c.Priority.From), priorityLabel(c.Priority.To)
		case FieldProject:
			line.From, line.To = projectName(c.Project.From), projectName(c.Project.To)
		case FieldAttachments:
			line.From, line.To = strconv.Itoa(c.Attachments.From), strconv.Itoa(c.Attachments.To)
		case FieldComments:
			line.Note = fmt.Sprintf("%s by %s", c.Comments.Action, c.Comments.Author)
		}
		lines = append(lines, line)
	}
	return lines
}

// formatTime accepts time.Time or *time.Time; nil and zero values render empty.
func (r *Renderer) formatTime(v any) string {
	var t time.Time
	switch tv := v.(type) {
	case time.Time:
		t = tv
	case *time.Time:
		if tv == nil {
			return ""
		}
		t = *tv
	default:
		return ""
	}
	if t.IsZero() {
		return ""
	}
	return t.In(r.location).Format(timeLayout)
}

// Template functions

var titleCaser = cases.Title(language.English)

func fieldLabel(field ChangeField) string {
	return titleCaser.String(strings.ReplaceAll(string(field), "_", " "))
}

func markdown(v any) string {
	return EscapeMarkdown(fmt.Sprint(v))
}

func statusLabel(status domain.TaskStatus) string {
	return strings.ReplaceAll(string(status), "_", " ")
}

func priorityLabel(p PriorityInfo) string {
	return fmt.Sprintf("%s (Level %d)", p.Name, p.Level)
}

func projectName(p *ProjectInfo) string {
	if p == nil {
		return "None"
	}
	return p.Name
}

func hoursLabel(hours int) string {
	if hours == 1 {
		return "hour"
	}
	return "hours"
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

var fileSizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders a byte count using power-of-1024 units rounded to two decimals.
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}

	value := float64(bytes)
	i := 0
	for value >= 1024 && i < len(fileSizeUnits)-1 {
		value /= 1024
		i++
	}
	value = math.Round(value*100) / 100

	return strconv.FormatFloat(value, 'f', -1, 64) + " " + fileSizeUnits[i]
}
