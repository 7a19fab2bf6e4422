// Command cropyield trains and serves the crop yield regression model.
//
//	cropyield load-data crop_yield.csv
//	cropyield train --config config.yaml
//	cropyield predict --input new_rows.csv --output predictions.csv
package main

import (
	"os"
)

func main() {
	os.Exit(run(os.Args[1:]))
}
