package main

import (
	"context"
	"os"

	"github.com/Maksumys/mt-migrator/cmd/mt-migrator/commands"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := commands.Execute(context.Background()); err != nil {
		logrus.WithError(err).Error("mt-migrator failed")
		os.Exit(1)
	}
}
