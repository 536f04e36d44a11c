// Copyright 2025 The medtrack authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package schedule

import (
	"context"
	"fmt"

	"cloudeng.io/cmdutil/cmdyaml"
	"cloudeng.io/datetime"
	"cloudeng.io/errors"
	"gopkg.in/yaml.v3"
)

type timeOfDay datetime.TimeOfDay

func (t *timeOfDay) UnmarshalYAML(node *yaml.Node) error {
	var tod datetime.TimeOfDay
	if err := tod.Parse(node.Value); err != nil {
		return fmt.Errorf("%w: invalid time of day: %q", ErrInvalidSchedule, node.Value)
	}
	*t = timeOfDay(tod)
	return nil
}

type daysOfWeek DaysOfWeek

func (d *daysOfWeek) UnmarshalYAML(node *yaml.Node) error {
	return (*DaysOfWeek)(d).Parse(node.Value)
}

type scheduleConfig struct {
	Name      string     `yaml:"name" cmd:"optional name for the schedule, defaults to medication#index"`
	When      timeOfDay  `yaml:"time" cmd:"the civil time of day the dose is due"`
	Days      daysOfWeek `yaml:"days" cmd:"the days of the week the dose is due, eg. mon,wed,fri"`
	Frequency string     `yaml:"frequency" cmd:"one of daily, weekly or as-needed, defaults to weekly"`
	Disabled  bool       `yaml:"disabled" cmd:"disable occurrence generation without deleting history"`
}

type medicationConfig struct {
	Name      string           `yaml:"name" cmd:"the name of the medication"`
	Dosage    string           `yaml:"dosage" cmd:"free form dosage description, eg. 10mg"`
	Schedules []scheduleConfig `yaml:"schedules" cmd:"the reminder schedules for this medication"`
}

type medicationsConfig struct {
	Medications []medicationConfig `yaml:"medications" cmd:"the medications being tracked"`
}

// Medication associates a named medication with its reminder schedules.
type Medication struct {
	Name      string
	Dosage    string
	Schedules []Schedule
}

// Config is the parsed set of medications and their schedules.
type Config struct {
	Medications []Medication
}

// Lookup returns the medication with the given name, or a zero value.
func (c Config) Lookup(name string) Medication {
	for _, m := range c.Medications {
		if m.Name == name {
			return m
		}
	}
	return Medication{}
}

// Schedules returns every schedule in the config, across all medications.
// Schedule names are unique within a config.
func (c Config) Schedules() []Schedule {
	var all []Schedule
	for _, m := range c.Medications {
		all = append(all, m.Schedules...)
	}
	return all
}

// ParseConfigFile parses a medications config from the specified file,
// which may be a local file or a URL.
func ParseConfigFile(ctx context.Context, cfgFile string) (Config, error) {
	var cfg medicationsConfig
	if err := cmdyaml.ParseConfigFile(ctx, cfgFile, &cfg); err != nil {
		return Config{}, err
	}
	return cfg.createSchedules()
}

// ParseConfig parses a medications config from yaml data.
func ParseConfig(cfgData []byte) (Config, error) {
	var cfg medicationsConfig
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		return Config{}, err
	}
	return cfg.createSchedules()
}

func (cfg medicationsConfig) createSchedules() (Config, error) {
	var parsed Config
	names := map[string]struct{}{}
	errs := errors.M{}
	for _, mc := range cfg.Medications {
		if mc.Name == "" {
			errs.Append(fmt.Errorf("%w: medication with no name", ErrInvalidSchedule))
			continue
		}
		med := Medication{Name: mc.Name, Dosage: mc.Dosage}
		for i, sc := range mc.Schedules {
			freq, err := parseFrequency(sc.Frequency)
			if err != nil {
				errs.Append(fmt.Errorf("medication %q: %w", mc.Name, err))
				continue
			}
			sched := Schedule{
				Name:      sc.Name,
				Due:       datetime.TimeOfDay(sc.When),
				Days:      DaysOfWeek(sc.Days),
				Frequency: freq,
				Enabled:   !sc.Disabled,
			}
			if freq == Daily {
				sched.Days = EveryDay()
			}
			if sched.Name == "" {
				sched.Name = fmt.Sprintf("%v#%v", mc.Name, i)
			}
			if _, ok := names[sched.Name]; ok {
				errs.Append(fmt.Errorf("%w: duplicate schedule name: %v", ErrInvalidSchedule, sched.Name))
				continue
			}
			names[sched.Name] = struct{}{}
			if err := sched.Validate(); err != nil {
				errs.Append(fmt.Errorf("medication %q: schedule %v: %w", mc.Name, i, err))
				continue
			}
			med.Schedules = append(med.Schedules, sched)
		}
		parsed.Medications = append(parsed.Medications, med)
	}
	return parsed, errs.Err()
}
