// entitystore serves annotated entities over gRPC, keeping their records
// and secondary indexes in Redis or in memory
package main

import (
	"fmt"
	"os"
)

func main() {
	Execute()
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
