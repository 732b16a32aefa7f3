package commands

import (
	"encoding/json"
	"strings"

	"github.com/joomcode/errorx"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func render(value any, format string) (string, error) {
	var output []byte
	var err error
	switch strings.ToLower(format) {
	case "json":
		output, err = json.MarshalIndent(value, "", "  ")
		if err != nil {
			return "", errorx.IllegalFormat.Wrap(err, "Error marshaling output to JSON")
		}
	case "yaml":
		output, err = yaml.Marshal(value)
		if err != nil {
			return "", errorx.IllegalFormat.Wrap(err, "Error marshaling output to YAML")
		}
	default:
		return "", errorx.IllegalFormat.New("unsupported format: %s", format)
	}
	return string(output), nil
}

func printOutput(cmd *cobra.Command, value any) error {
	output, err := render(value, flagOutputFormat)
	if err != nil {
		return err
	}
	cmd.Println(strings.TrimRight(output, "\n"))
	return nil
}
