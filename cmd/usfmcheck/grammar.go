package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
)

// GrammarGroup inspects the tag grammar.
type GrammarGroup struct {
	List GrammarListCmd `cmd:"" help:"List the tags of the grammar"`
	Show GrammarShowCmd `cmd:"" help:"Show the definition of one tag"`
}

// GrammarListCmd lists tag names.
type GrammarListCmd struct {
	Grammar string `help:"Replacement tag grammar (JSON Lines)" type:"existingfile"`
}

func (c *GrammarListCmd) Run() error {
	reg, err := loadGrammar(c.Grammar)
	if err != nil {
		return err
	}
	for _, name := range reg.Names() {
		def, _ := reg.Lookup(name)
		line := `\` + name
		var flags []string
		if def.Deprecated {
			flags = append(flags, "deprecated")
		}
		if def.Closing != "" {
			flags = append(flags, string(def.Closing))
		}
		if len(flags) > 0 {
			line += "\t" + strings.Join(flags, ",")
		}
		fmt.Println(line)
	}
	return nil
}

// GrammarShowCmd prints one tag definition as JSON.
type GrammarShowCmd struct {
	Tag     string `arg:"" help:"Tag name, with or without backslash"`
	Grammar string `help:"Replacement tag grammar (JSON Lines)" type:"existingfile"`
}

func (c *GrammarShowCmd) Run() error {
	reg, err := loadGrammar(c.Grammar)
	if err != nil {
		return err
	}
	marker, ok := reg.Normalize(`\` + strings.TrimPrefix(c.Tag, `\`))
	if !ok || !marker.Registered {
		return errors.NewNotFound("tag", c.Tag)
	}
	def, _ := reg.Lookup(marker.Core)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(def)
}
