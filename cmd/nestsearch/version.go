package main

import (
	"fmt"
	"runtime/debug"
)

func version() string {
	v := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			v = info.Main.Version
		}
	}
	return fmt.Sprintf("nestsearch %s", v)
}
