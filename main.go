// main is the entry point for the visqa CLI.
package main

import (
	"os"

	"github.com/huangsam/visqa/cmd"
	"github.com/huangsam/visqa/internal/contract"
	"github.com/huangsam/visqa/internal/iocache"
)

func main() {
	cmd.SetCacheManager(iocache.Manager)
	defer iocache.CloseStores()

	err := cmd.Execute()
	if perr := cmd.StopProfiling(); perr != nil {
		contract.LogWarn("Failed to stop profiling", perr)
	}
	if err != nil {
		contract.Logger().Error(err.Error())
		iocache.CloseStores()
		os.Exit(1)
	}
}
