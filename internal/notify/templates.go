package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"text/template"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/goaltrack/internal/goal"
	"github.com/fyrsmithlabs/goaltrack/internal/logging"
)

// FallbackMessage is sent when no template renders.
const FallbackMessage = "Time to make progress on your goal!"

// ErrInvalidTemplate is returned for template files that do not parse.
var ErrInvalidTemplate = errors.New("invalid notification template")

// DefaultTemplates are used for any category the template file leaves out.
var DefaultTemplates = TemplateFile{
	Generic: "Time to make progress on {{.Title}}!",
	Categories: map[string]string{
		string(goal.CategoryHabit):   "{{if gt .Streak 0}}{{.Streak}}-day streak on {{.Title}}. Keep it alive today!{{else}}Start a new streak: {{.Title}} today!{{end}}",
		string(goal.CategoryProject): "{{.Title}}: {{.Done}}/{{.Total}} tasks done.{{if .NextItem}} Next up: {{.NextItem}}{{end}}",
		string(goal.CategoryLearn):   "{{.Title}} is {{.Progress}}% done.{{if .NextItem}} Next lesson: {{.NextItem}}{{end}}",
		string(goal.CategorySave):    "{{.Title}}: {{.Remaining}} to go. Put {{.DailyTarget}} aside today!",
	},
}

// TemplateFile is the TOML shape of a template override file:
//
//	generic = "Time to work on {{.Title}}!"
//	[categories]
//	habit = "{{.Streak}} days and counting on {{.Title}}"
type TemplateFile struct {
	Generic    string            `toml:"generic"`
	Categories map[string]string `toml:"categories"`
}

type templateSet struct {
	generic    *template.Template
	categories map[goal.Category]*template.Template
}

func compile(f TemplateFile) (*templateSet, error) {
	merged := TemplateFile{Generic: DefaultTemplates.Generic, Categories: map[string]string{}}
	for k, v := range DefaultTemplates.Categories {
		merged.Categories[k] = v
	}
	if f.Generic != "" {
		merged.Generic = f.Generic
	}
	for k, v := range f.Categories {
		if _, err := goal.ParseCategory(k); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
		}
		merged.Categories[k] = v
	}

	set := &templateSet{categories: make(map[goal.Category]*template.Template, len(merged.Categories))}
	var err error
	if set.generic, err = parse("generic", merged.Generic); err != nil {
		return nil, err
	}
	for k, v := range merged.Categories {
		t, err := parse(k, v)
		if err != nil {
			return nil, err
		}
		set.categories[goal.Category(k)] = t
	}
	return set, nil
}

func parse(name, text string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, name, err)
	}
	// Render once against an empty context so bad field names fail at load.
	if err := t.Execute(&bytes.Buffer{}, MessageContext{}); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, name, err)
	}
	return t, nil
}

// Templates renders fallback reminder copy. The set can be reloaded while
// in use.
type Templates struct {
	path   string
	set    atomic.Pointer[templateSet]
	logger *logging.Logger
}

// LoadTemplates loads path over the defaults. An empty path or a missing
// file yields the defaults.
func LoadTemplates(path string, logger *logging.Logger) (*Templates, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	t := &Templates{path: path, logger: logger}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload rereads the template file. On error the previous set stays active.
func (t *Templates) Reload() error {
	var f TemplateFile
	if t.path != "" {
		if _, err := toml.DecodeFile(t.path, &f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, t.path, err)
		}
	}
	set, err := compile(f)
	if err != nil {
		return err
	}
	t.set.Store(set)
	return nil
}

// Render returns the category template applied to mc, then the generic
// template, then FallbackMessage. It never returns an empty string.
func (t *Templates) Render(mc MessageContext) string {
	set := t.set.Load()
	if set == nil {
		return FallbackMessage
	}
	for _, tmpl := range []*template.Template{set.categories[mc.Category], set.generic} {
		if tmpl == nil {
			continue
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, mc); err != nil {
			continue
		}
		if s := strings.TrimSpace(buf.String()); s != "" {
			return s
		}
	}
	return FallbackMessage
}

// Watch reloads the file whenever it changes until ctx is done. The parent
// directory is watched so editors that replace the file are seen.
func (t *Templates) Watch(ctx context.Context) error {
	if t.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating template watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(t.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(t.path), err)
	}

	go func() {
		defer w.Close()
		name := filepath.Clean(t.path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := t.Reload(); err != nil {
					t.logger.Warn(ctx, "template reload failed, keeping previous set", zap.Error(err))
					continue
				}
				t.logger.Info(ctx, "notification templates reloaded", zap.String("path", t.path))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				t.logger.Warn(ctx, "template watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
