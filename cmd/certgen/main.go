// Command certgen provisions a self-signed certificate and key for
// development servers. It is a one-shot tool: run it once, then point the
// server at the generated files.
package main

import (
	"flag"
	"fmt"
	"log"

	"example.com/h3mux/internal/testutil"
)

func main() {
	var (
		host string
		dir  string
	)
	flag.StringVar(&host, "host", "localhost", "Hostname or IP to embed in the certificate")
	flag.StringVar(&dir, "out", "cert", "Output directory for cert.pem and key.pem")
	flag.Parse()

	certPath, keyPath, err := testutil.WriteSelfSignedCertKeyFiles(dir, host)
	if err != nil {
		log.Fatalf("Failed to generate certificate: %v", err)
	}
	fmt.Printf("Wrote %s and %s\n", certPath, keyPath)
}
