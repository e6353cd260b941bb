// Command okapi is a small inspection tool over an okapi database:
//
//	okapi -config db.yaml status
//	okapi -config db.yaml get [collection] <key>
//	okapi -config db.yaml put [collection] <key> <value>
//	okapi -config db.yaml del [collection] <key>
//	okapi -config db.yaml scan [collection] <min-key> <count>
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/okapidb/okapi"
	"github.com/okapidb/okapi/pkg/log"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (empty opens an in-memory database)")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	level, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		fatalf("parse log level: %v", err)
	}
	log.Init(log.Options{LogLevel: level, Type: log.ConsoleLogger})

	config := ""
	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err != nil {
			fatalf("read config: %v", err)
		}
		config = string(raw)
	}

	db, err := okapi.Open(config)
	if err != nil {
		fatalf("open database: %v", err)
	}
	defer db.Close()

	args := flag.Args()
	if len(args) == 0 {
		fatalf("missing command; one of status, get, put, del, scan")
	}
	if err := run(db, args[0], args[1:]); err != nil {
		fatalf("%s: %v", args[0], err)
	}
}

func run(db *okapi.DB, command string, args []string) error {
	switch command {
	case "status":
		status, err := db.Status()
		if err != nil {
			return err
		}
		fmt.Printf("version:      %d.%d\n", status.VersionMajor, status.VersionMinor)
		fmt.Printf("instance:     %s\n", status.InstanceID)
		fmt.Printf("memory:       %d bytes\n", status.MemoryUsage)
		fmt.Printf("disk:         %d bytes\n", status.DiskUsage)
		fmt.Printf("transactions: %d live\n", status.ActiveTransactions)
		fmt.Printf("sequence:     %d\n", status.CommittedSequence)
		return nil

	case "get":
		col, rest, err := resolveCollection(db, args, 1)
		if err != nil {
			return err
		}
		key, err := parseKey(rest[0])
		if err != nil {
			return err
		}
		res, err := db.Read(nil, okapi.SingleRead(col, key), 0, nil)
		if err != nil {
			return err
		}
		value, ok := res.Value(0)
		if !ok {
			return fmt.Errorf("key %d is absent", key)
		}
		fmt.Printf("%d bytes: %q\n", len(value), value)
		return nil

	case "put":
		col, rest, err := resolveCollection(db, args, 2)
		if err != nil {
			return err
		}
		key, err := parseKey(rest[0])
		if err != nil {
			return err
		}
		return db.Write(nil, okapi.SinglePut(col, key, []byte(rest[1])), okapi.WriteFlush)

	case "del":
		col, rest, err := resolveCollection(db, args, 1)
		if err != nil {
			return err
		}
		key, err := parseKey(rest[0])
		if err != nil {
			return err
		}
		return db.Write(nil, okapi.SingleDelete(col, key), okapi.WriteFlush)

	case "scan":
		col, rest, err := resolveCollection(db, args, 2)
		if err != nil {
			return err
		}
		minKey, err := parseKey(rest[0])
		if err != nil {
			return err
		}
		count, err := strconv.ParseUint(rest[1], 10, 32)
		if err != nil {
			return fmt.Errorf("parse count %q: %w", rest[1], err)
		}
		res, err := db.Scan(nil, okapi.SingleScan(col, minKey, uint32(count)), 0, nil)
		if err != nil {
			return err
		}
		for i := 0; i < res.Count(0); i++ {
			fmt.Printf("%d\t%d bytes\n", res.Key(0, i), res.ValueLen(0, i))
		}
		return nil
	}
	return fmt.Errorf("unknown command %q", command)
}

// resolveCollection interprets an optional leading collection-name
// argument: with exactly want args the default collection is used, with
// want+1 the first argument names the collection.
func resolveCollection(db *okapi.DB, args []string, want int) (okapi.Collection, []string, error) {
	switch len(args) {
	case want:
		return okapi.DefaultCollection, args, nil
	case want + 1:
		col, err := db.CollectionOpen(args[0])
		if err != nil {
			return okapi.Collection{}, nil, err
		}
		return col, args[1:], nil
	}
	return okapi.Collection{}, nil, fmt.Errorf("expected %d or %d arguments, got %d", want, want+1, len(args))
}

func parseKey(raw string) (okapi.Key, error) {
	key, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse key %q: %w", raw, err)
	}
	return okapi.Key(key), nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
