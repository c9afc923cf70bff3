package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/mit-pdos/go-filehdr/common"
	"github.com/mit-pdos/go-filehdr/config"
	"github.com/mit-pdos/go-filehdr/volume"
)

func usage() {
	fmt.Fprint(flag.CommandLine.Output(), "Usage: fhtool [-config file] action [args]\n"+
		"Actions:\n"+
		"  format\n"+
		"  create size\n"+
		"  extend hdr bytes\n"+
		"  remove hdr\n"+
		"  write hdr offset text\n"+
		"  read hdr\n"+
		"  dump hdr\n"+
		"  check hdr...\n")
	flag.PrintDefaults()
}

func parseNum(s string) uint64 {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		log.Fatalf("bad number %q: %v", s, err)
	}
	return n
}

func parseSnum(s string) common.Snum {
	n := parseNum(s)
	if n > uint64(^common.Snum(0)) {
		log.Fatalf("sector %d out of range", n)
	}
	return common.Snum(n)
}

func needArgs(args []string, n int) {
	if len(args) != n {
		usage()
		os.Exit(2)
	}
}

func main() {
	configFile := flag.String("config", "", "volume configuration (YAML)")
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}
	geom, err := cfg.Geom()
	if err != nil {
		log.Fatal(err)
	}
	d, err := cfg.OpenDisk()
	if err != nil {
		log.Fatalf("cannot open disk: %v", err)
	}

	var v *volume.Volume
	if args[0] == "format" {
		v, err = volume.Format(d, geom)
	} else {
		v, err = volume.Open(d)
	}
	if err != nil {
		log.Fatal(err)
	}
	defer v.Close()

	if err := run(v, args); err != nil {
		v.Close()
		log.Fatal(err)
	}
}

func run(v *volume.Volume, args []string) error {
	switch args[0] {
	case "format":
		needArgs(args, 1)
		fmt.Printf("formatted: %d sectors, %d free\n", v.Super().NumSectors, v.NumFree())
	case "create":
		needArgs(args, 2)
		hdr, err := v.Create(parseNum(args[1]))
		if err != nil {
			return err
		}
		fmt.Println(hdr)
	case "extend":
		needArgs(args, 3)
		return v.Extend(parseSnum(args[1]), parseNum(args[2]))
	case "remove":
		needArgs(args, 2)
		return v.Remove(parseSnum(args[1]))
	case "write":
		needArgs(args, 4)
		_, err := v.WriteAt(parseSnum(args[1]), []byte(args[3]), parseNum(args[2]))
		return err
	case "read":
		needArgs(args, 2)
		hdr := parseSnum(args[1])
		length, err := v.Length(hdr)
		if err != nil {
			return err
		}
		p := make([]byte, length)
		if _, err := v.ReadAt(hdr, p, 0); err != nil && err != io.EOF {
			return err
		}
		os.Stdout.Write(p)
	case "dump":
		needArgs(args, 2)
		return v.Dump(parseSnum(args[1]), os.Stdout)
	case "check":
		var hdrs []common.Snum
		for _, a := range args[1:] {
			hdrs = append(hdrs, parseSnum(a))
		}
		r, err := v.Check(hdrs)
		if err != nil {
			return err
		}
		fmt.Printf("%d files, %d sectors owned, %d free\n", r.Files, r.Owned, v.NumFree())
		if len(r.Leaked) > 0 {
			fmt.Printf("leaked: %v\n", r.Leaked)
		}
	default:
		usage()
		os.Exit(2)
	}
	return nil
}
