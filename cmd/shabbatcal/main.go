package main

import (
	"os"

	appLog "shabbatcal/internal/log"
)

func main() {
	if err := Execute(); err != nil {
		appLog.Error("shabbatcal failed", err)
		os.Exit(1)
	}
}
