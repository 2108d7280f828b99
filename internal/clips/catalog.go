package clips

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/glizzus/terminus/internal/schedule"
	"github.com/glizzus/terminus/internal/util"
	"gopkg.in/yaml.v3"
)

// Clip is a short sound that triggers and schedules refer to by ID.
type Clip struct {
	ID   string `yaml:"id"`
	File string `yaml:"file"`
}

// Trigger replies to chat messages matching Pattern and optionally plays a
// clip.
type Trigger struct {
	Pattern string `yaml:"pattern"`
	Reply   string `yaml:"reply"`
	Clip    string `yaml:"clip"`

	re *regexp.Regexp
}

// Matches reports whether content matches the trigger. It is false until the
// catalog has been validated.
func (t *Trigger) Matches(content string) bool {
	return t.re != nil && t.re.MatchString(content)
}

// Schedule plays a clip in a guild on a cron expression. An empty Channel
// means the configured scheduled-clip channel.
type Schedule struct {
	Guild   string `yaml:"guild"`
	Clip    string `yaml:"clip"`
	Cron    string `yaml:"cron"`
	Channel string `yaml:"channel"`
}

type Catalog struct {
	Clips []Clip `yaml:"clips"`
	// Songs maps play command aliases to file names.
	Songs     map[string]string `yaml:"songs"`
	Triggers  []Trigger         `yaml:"triggers"`
	Schedules []Schedule        `yaml:"schedules"`
}

// LoadCatalog reads and validates the catalog at path.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("clips: open %q: %w", path, err)
	}
	defer f.Close()

	c, err := ParseCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("clips: parse %q: %w", path, err)
	}
	return c, nil
}

// ParseCatalog decodes a catalog from r and validates it. An empty document
// is an empty catalog.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	c := &Catalog{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the catalog and compiles trigger patterns. It returns every
// problem found, joined.
func (c *Catalog) Validate() error {
	var errs []error

	seen := make(map[string]int, len(c.Clips))
	for i, clip := range c.Clips {
		prefix := fmt.Sprintf("clips[%d]", i)
		if clip.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else if prev, ok := seen[clip.ID]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of clips[%d]", prefix, clip.ID, prev))
		} else {
			seen[clip.ID] = i
		}
		if clip.File == "" {
			errs = append(errs, fmt.Errorf("%s.file is required", prefix))
		}
	}

	for alias, file := range c.Songs {
		if file == "" {
			errs = append(errs, fmt.Errorf("songs.%s has no file", alias))
		}
	}

	for i := range c.Triggers {
		t := &c.Triggers[i]
		prefix := fmt.Sprintf("triggers[%d]", i)
		re, err := regexp.Compile(t.Pattern)
		switch {
		case t.Pattern == "":
			errs = append(errs, fmt.Errorf("%s.pattern is required", prefix))
		case err != nil:
			errs = append(errs, fmt.Errorf("%s.pattern: %w", prefix, err))
		default:
			t.re = re
		}
		if t.Reply == "" && t.Clip == "" {
			errs = append(errs, fmt.Errorf("%s needs a reply or a clip", prefix))
		}
		if _, ok := seen[t.Clip]; t.Clip != "" && !ok {
			errs = append(errs, fmt.Errorf("%s.clip %q is not a known clip", prefix, t.Clip))
		}
	}

	for i, s := range c.Schedules {
		prefix := fmt.Sprintf("schedules[%d]", i)
		if s.Guild == "" {
			errs = append(errs, fmt.Errorf("%s.guild is required", prefix))
		}
		if _, ok := seen[s.Clip]; !ok {
			errs = append(errs, fmt.Errorf("%s.clip %q is not a known clip", prefix, s.Clip))
		}
		if err := schedule.ValidateCron(s.Cron); err != nil {
			errs = append(errs, fmt.Errorf("%s.cron: %w", prefix, err))
		}
	}

	return errors.Join(errs...)
}

// Clip looks a clip up by ID.
func (c *Catalog) Clip(id string) (Clip, bool) {
	return util.FindFirst(c.Clips, func(clip Clip) bool {
		return clip.ID == id
	})
}

// Match returns the triggers matching content, in catalog order.
func (c *Catalog) Match(content string) []Trigger {
	var matches []Trigger
	for _, t := range c.Triggers {
		if t.Matches(content) {
			matches = append(matches, t)
		}
	}
	return matches
}

// ResolveSong maps a song alias to its file name. Anything that is not an
// alias is taken as a file name.
func (c *Catalog) ResolveSong(name string) string {
	if file, ok := c.Songs[name]; ok {
		return file
	}
	return name
}

// ScheduleEntries converts the catalog schedules for the scheduler.
func (c *Catalog) ScheduleEntries() []schedule.Entry {
	entries := make([]schedule.Entry, 0, len(c.Schedules))
	for _, s := range c.Schedules {
		entries = append(entries, schedule.Entry{
			GuildID:   s.Guild,
			ClipID:    s.Clip,
			Cron:      s.Cron,
			ChannelID: s.Channel,
		})
	}
	return entries
}
