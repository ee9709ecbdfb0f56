// Kaffee CLI - loads classfiles and runs bytecode on the kaffee VM.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/kaffee-vm/kaffee/classfile"
	"github.com/kaffee-vm/kaffee/classstore"
	"github.com/kaffee-vm/kaffee/manifest"
	"github.com/kaffee-vm/kaffee/snapshot"
	"github.com/kaffee-vm/kaffee/vm"

	_ "github.com/tliron/commonlog/simple"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: kaffee <command> [options] [args...]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run       load classfiles and execute a method\n")
	fmt.Fprintf(os.Stderr, "  info      dump the structure of a classfile\n")
	fmt.Fprintf(os.Stderr, "  snapshot  serialize loaded classes to an image\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  kaffee run Main.class                  # run Main.main()V\n")
	fmt.Fprintf(os.Stderr, "  kaffee run -m sum -d '(I)I' Main.class 5\n")
	fmt.Fprintf(os.Stderr, "  kaffee run -image app.kfi -m main Main\n")
	fmt.Fprintf(os.Stderr, "  kaffee info Main.class\n")
	fmt.Fprintf(os.Stderr, "  kaffee snapshot -o app.kfi Main.class Dog.class\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(os.Args[2:])
	case "info":
		err = cmdInfo(os.Args[2:])
	case "snapshot":
		err = cmdSnapshot(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	method := fs.String("m", "main", "Method name to execute")
	descriptor := fs.String("d", "()V", "Method descriptor")
	image := fs.String("image", "", "Load classes from a snapshot image instead of classfiles")
	gcThreshold := fs.Int("gc", 0, "GC threshold override (0 = manifest or default)")
	maxObjects := fs.Int("max-objects", 0, "Heap object cap (0 = manifest or unbounded)")
	verbosity := fs.Int("v", 0, "Log verbosity")
	manifestPath := fs.String("manifest", "", "Path to kaffee.toml (default: search upward from .)")
	fs.Parse(args)

	var m *manifest.Manifest
	if *manifestPath != "" {
		var err error
		if m, err = manifest.Load(*manifestPath); err != nil {
			return err
		}
	} else {
		m, _ = manifest.Find(".")
	}

	cfg := vm.Config{GCThreshold: *gcThreshold, MaxObjects: *maxObjects}
	verbose := *verbosity
	if m != nil {
		if cfg.GCThreshold == 0 {
			cfg.GCThreshold = m.Runtime.GCThreshold
		}
		if cfg.MaxObjects == 0 {
			cfg.MaxObjects = m.Runtime.MaxObjects
		}
		if verbose == 0 {
			verbose = m.Runtime.Verbosity
		}
	}
	commonlog.Configure(verbose, nil)

	machine := vm.NewWithConfig(cfg)

	var store *classstore.Store
	if m != nil && m.Runtime.Store != "" {
		var err error
		if store, err = classstore.Open(m.Runtime.Store); err != nil {
			return err
		}
		defer store.Close()
	}

	if *image != "" {
		data, err := os.ReadFile(*image)
		if err != nil {
			return err
		}
		img, err := snapshot.Unmarshal(data)
		if err != nil {
			return err
		}
		if err := snapshot.Restore(img, machine.Metaspace()); err != nil {
			return err
		}
	}

	// Positionals ending in .class are loaded; the first names the entry
	// class. Anything else is either an already-loaded class name (first
	// position) or an integer argument.
	var entryClass string
	var vmArgs []vm.Value
	for _, arg := range fs.Args() {
		switch {
		case strings.HasSuffix(arg, ".class"):
			name, err := loadClassfile(machine, store, arg)
			if err != nil {
				return err
			}
			if entryClass == "" {
				entryClass = name
			}
		case entryClass == "" && !isInt(arg):
			name, err := loadClassByName(machine, store, m, arg)
			if err != nil {
				return err
			}
			entryClass = name
		default:
			n, err := strconv.ParseInt(arg, 10, 32)
			if err != nil {
				return fmt.Errorf("argument %q is not an integer", arg)
			}
			vmArgs = append(vmArgs, vm.IntValue(int32(n)))
		}
	}
	if entryClass == "" {
		return fmt.Errorf("no entry class: pass a .class file or a class name")
	}

	result, hasResult, err := machine.Run(entryClass, *method, *descriptor, vmArgs...)
	if err != nil {
		return err
	}
	if hasResult {
		fmt.Println(result.String())
	}
	return nil
}

// loadClassfile parses and loads one .class file, recording it in the
// store when one is configured.
func loadClassfile(machine *vm.VM, store *classstore.Store, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	cf, err := classfile.Parse(data)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", path, err)
	}
	name, err := machine.LoadClass(cf)
	if err != nil {
		return "", err
	}
	if store != nil {
		if _, err := store.Put(name, data); err != nil {
			return "", err
		}
	}
	return name, nil
}

// loadClassByName locates a class by name: already loaded (from an image),
// then the store, then the manifest classpath.
func loadClassByName(machine *vm.VM, store *classstore.Store, m *manifest.Manifest, name string) (string, error) {
	if machine.Metaspace().Loaded(name) {
		return name, nil
	}

	if store != nil {
		if data, err := store.GetByName(name); err == nil {
			cf, err := classfile.Parse(data)
			if err != nil {
				return "", err
			}
			return machine.LoadClass(cf)
		}
	}

	if m != nil {
		path, err := m.ClassfilePath(name)
		if err != nil {
			return "", err
		}
		return loadClassfile(machine, store, path)
	}

	return "", fmt.Errorf("class %s not loaded and no classpath to find it on", name)
}

func isInt(s string) bool {
	_, err := strconv.ParseInt(s, 10, 32)
	return err == nil
}

func cmdInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("info wants exactly one .class file")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	cf, err := classfile.Parse(data)
	if err != nil {
		return err
	}

	name, err := cf.ClassName()
	if err != nil {
		return err
	}
	super, err := cf.SuperClassName()
	if err != nil {
		return err
	}

	fmt.Printf("class %s\n", name)
	fmt.Printf("  version: %s (minor %d, major %d)\n", cf.JavaVersion(), cf.MinorVersion, cf.MajorVersion)
	fmt.Printf("  super:   %s\n", super)
	fmt.Printf("  flags:   0x%04X\n", cf.AccessFlags)
	fmt.Printf("  constant pool: %d entries\n", cf.ConstantPool.Len())

	fmt.Printf("  fields (%d):\n", len(cf.Fields))
	for i := range cf.Fields {
		fieldName, _ := cf.ConstantPool.Utf8(cf.Fields[i].NameIndex)
		descriptor, _ := cf.ConstantPool.Utf8(cf.Fields[i].DescriptorIndex)
		fmt.Printf("    %s %s (flags 0x%04X)\n", fieldName, descriptor, cf.Fields[i].AccessFlags)
	}

	fmt.Printf("  methods (%d):\n", len(cf.Methods))
	for i := range cf.Methods {
		methodName, _ := cf.ConstantPool.Utf8(cf.Methods[i].NameIndex)
		descriptor, _ := cf.ConstantPool.Utf8(cf.Methods[i].DescriptorIndex)
		fmt.Printf("    %s%s (flags 0x%04X)", methodName, descriptor, cf.Methods[i].AccessFlags)
		if code, err := cf.Code(&cf.Methods[i]); err == nil {
			fmt.Printf(" [%d bytes of code, max_stack=%d, max_locals=%d]",
				len(code.Code), code.MaxStack, code.MaxLocals)
		}
		fmt.Println()
	}
	return nil
}

func cmdSnapshot(args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	out := fs.String("o", "classes.kfi", "Output image path")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("snapshot wants at least one .class file")
	}

	machine := vm.New()
	for _, path := range fs.Args() {
		if _, err := loadClassfile(machine, nil, path); err != nil {
			return err
		}
	}

	img := snapshot.FromMetaspace(machine.Metaspace())
	data, err := snapshot.Marshal(img)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d classes, %d bytes)\n", *out, len(img.Classes), len(data))
	return nil
}
