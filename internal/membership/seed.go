package membership

import (
	_ "embed"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/openquant/indexfill/internal/model"
)

//go:embed seed.yaml
var seedYAML []byte

type seedFile struct {
	Changes []struct {
		EffectiveDate string `yaml:"effective_date"`
		Action        string `yaml:"action"`
		Ticker        string `yaml:"ticker"`
		Description   string `yaml:"description"`
	} `yaml:"changes"`
}

// SeedChanges returns the curated change events shipped with the binary.
// It covers headline adds and removals only; a full historical ledger comes
// from the reference scraper.
func SeedChanges() ([]model.MembershipChangeEvent, error) {
	return parseSeed(seedYAML)
}

// LoadSeedFile reads change events from a user-supplied YAML file with the
// same shape as the embedded seed.
func LoadSeedFile(path string) ([]model.MembershipChangeEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: open %s", path)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read %s", path)
	}
	return parseSeed(raw)
}

func parseSeed(raw []byte) ([]model.MembershipChangeEvent, error) {
	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, eris.Wrap(err, "seed: parse yaml")
	}

	events := make([]model.MembershipChangeEvent, 0, len(file.Changes))
	for _, c := range file.Changes {
		d, err := model.ParseDate(c.EffectiveDate)
		if err != nil {
			return nil, eris.Wrapf(err, "seed: bad effective_date %q for %s", c.EffectiveDate, c.Ticker)
		}
		action := model.Action(c.Action)
		if action != model.ActionAdd && action != model.ActionRemove {
			return nil, eris.Errorf("seed: bad action %q for %s", c.Action, c.Ticker)
		}
		if c.Ticker == "" {
			return nil, eris.Errorf("seed: missing ticker on %s", c.EffectiveDate)
		}
		events = append(events, model.MembershipChangeEvent{
			EffectiveDate: d,
			Action:        action,
			Ticker:        c.Ticker,
			Description:   c.Description,
		})
	}
	return events, nil
}
