package main

import (
	"crypto/sha256"
	"flag"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/gosuri/uiprogress"
	"github.com/je4/sftpsession/v2/pkg/config"
	xsftp "github.com/je4/sftpsession/v2/pkg/sftp"
	"github.com/op/go-logging"
)

const logFormat = "%{time:2006-01-02T15:04:05.000} %{module}::%{shortfunc} [%{shortfile}] > %{level:.5s} - %{message}"

var targetRegex = regexp.MustCompile(`^([^@]+)@([^/:]+):([0-9]+)/(.*)$`)

func usage() {
	fmt.Printf("%s [-config file] [-identity private key file] [-target sftp://user@host:port/dir] <command> [args]\n", os.Args[0])
	fmt.Println("commands:")
	fmt.Println("  ls [-l] [-r] [dir]")
	fmt.Println("  get [-progress] [-checksum] <remote> <local>")
	fmt.Println("  put [-progress] [-checksum] <local> <remote>")
	fmt.Println("  rm [-r] <path>")
	fmt.Println("  mkdir [-p] <dir>")
	fmt.Println("  stat <path>")
	fmt.Println("  mv <old> <new>")
}

// parseTarget accepts sftp urls and the short form user@host:port/path.
func parseTarget(target string) (*url.URL, error) {
	if matches := targetRegex.FindStringSubmatch(target); matches != nil {
		target = fmt.Sprintf("sftp://%s@%s:%s/%s", matches[1], matches[2], matches[3], matches[4])
	}
	return url.Parse(target)
}

func main() {
	var configFile = flag.String("config", "", "toml configuration file")
	var privateKey = flag.String("identity", "", "private key file")
	var target = flag.String("target", "", "sftp://user@host:port/dir or user@host:port/dir")
	var loglevel = flag.String("loglevel", "", "log level (overrides config)")
	var logfile = flag.String("logfile", "", "log file (overrides config)")
	flag.Parse()
	tail := flag.Args()
	if len(tail) < 1 {
		usage()
		os.Exit(1)
	}

	conf, err := config.LoadFile(*configFile)
	if err != nil {
		fmt.Printf("cannot load config: %v\n", err)
		os.Exit(1)
	}
	if *loglevel != "" {
		conf.LogLevel = *loglevel
	}
	if *logfile != "" {
		conf.LogFile = *logfile
	}
	if *privateKey != "" {
		fi, err := os.Stat(*privateKey)
		if err != nil {
			fmt.Printf("cannot stat %s: %v\n", *privateKey, err)
			os.Exit(1)
		}
		if fi.IsDir() {
			fmt.Printf("%s is a directory\n", *privateKey)
			os.Exit(1)
		}
		conf.PrivateKeys = append([]string{*privateKey}, conf.PrivateKeys...)
	}

	logger, lf := CreateLogger("sftp", conf.LogFile, nil, conf.LogLevel, logFormat)
	defer lf.Close()

	session, err := connect(conf, *target, logger)
	if err != nil {
		logger.Errorf("cannot connect: %v", err)
		lf.Close()
		os.Exit(1)
	}
	defer session.ResetConnection()

	if err := run(session, tail[0], tail[1:]); err != nil {
		logger.Errorf("%s: %v", tail[0], err)
		session.ResetConnection()
		lf.Close()
		os.Exit(1)
	}
}

func connect(conf *config.Config, target string, logger *logging.Logger) (*xsftp.Session, error) {
	session := xsftp.NewSession(
		xsftp.WithLogger(logger),
		xsftp.WithDialer(&xsftp.SSHDialer{
			PrivateKeys:          conf.PrivateKeys,
			KnownHosts:           conf.KnownHosts,
			MaxClientConcurrency: conf.MaxConcurrency,
			MaxPacketSize:        conf.MaxPacketSize,
			Log:                  logger,
		}),
	)
	loginOpts := []xsftp.LoginOption{
		xsftp.WithHost(conf.Hostname),
		xsftp.WithPort(conf.Port),
		xsftp.WithTimeout(conf.Timeout.Duration),
	}
	if target == "" {
		return session, session.Login(conf.Username, conf.Password, loginOpts...)
	}
	uri, err := parseTarget(target)
	if err != nil {
		return nil, err
	}
	if uri.User == nil && conf.Username != "" {
		uri.User = url.User(conf.Username)
	}
	dir, err := session.LoginURL(uri, conf.Password, loginOpts...)
	if err != nil {
		return nil, err
	}
	if dir != "" && dir != "/" {
		if err := session.Chdir(dir); err != nil {
			session.ResetConnection()
			return nil, err
		}
	}
	return session, nil
}

func run(session *xsftp.Session, cmd string, args []string) error {
	switch cmd {
	case "ls":
		return ls(session, args)
	case "get", "put":
		return transfer(session, cmd, args)
	case "rm":
		fs := flag.NewFlagSet("rm", flag.ExitOnError)
		recursive := fs.Bool("r", false, "recursive")
		fs.Parse(args)
		if fs.NArg() != 1 {
			return fmt.Errorf("rm needs one path")
		}
		return check(session.Delete(fs.Arg(0), *recursive))(session)
	case "mkdir":
		fs := flag.NewFlagSet("mkdir", flag.ExitOnError)
		parents := fs.Bool("p", false, "create parents")
		fs.Parse(args)
		if fs.NArg() != 1 {
			return fmt.Errorf("mkdir needs one directory")
		}
		return check(session.Mkdir(fs.Arg(0), xsftp.NoMode, *parents))(session)
	case "mv":
		if len(args) != 2 {
			return fmt.Errorf("mv needs two paths")
		}
		return check(session.Rename(args[0], args[1]))(session)
	case "stat":
		if len(args) != 1 {
			return fmt.Errorf("stat needs one path")
		}
		st, ok := session.Lstat(args[0])
		if !ok {
			return session.Err()
		}
		fmt.Printf("%s %s %d %d:%d %s\n", st.Mode, st.Type(), st.Size, st.UID, st.GID, st.MTime.Format(time.RFC3339))
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %s", cmd)
	}
}

// check turns a (bool, error) result into an error.
func check(ok bool, err error) func(*xsftp.Session) error {
	return func(session *xsftp.Session) error {
		if err != nil {
			return err
		}
		if !ok {
			return session.Err()
		}
		return nil
	}
}

func ls(session *xsftp.Session, args []string) error {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	long := fs.Bool("l", false, "long format")
	recursive := fs.Bool("r", false, "recursive")
	fs.Parse(args)
	dir := fs.Arg(0)

	session.SetListOrder(xsftp.Asc(xsftp.SortFilename))
	if !*long {
		names, ok := session.NList(dir, *recursive)
		if !ok {
			return session.Err()
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	}
	entries, ok := session.RawList(dir, *recursive)
	if !ok {
		return session.Err()
	}
	for _, e := range entries {
		fmt.Printf("%s %5d %5d %12d %s %s\n", e.Stat.Mode, e.Stat.UID, e.Stat.GID, e.Stat.Size, e.Stat.MTime.Format("2006-01-02 15:04"), e.Name)
	}
	return nil
}

func transfer(session *xsftp.Session, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	showProgress := fs.Bool("progress", false, "show progress bar")
	checksum := fs.Bool("checksum", false, "print sha256 of the transferred data")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("%s needs source and target", cmd)
	}
	src, dst := fs.Arg(0), fs.Arg(1)

	var size int64
	if cmd == "get" {
		s, ok := session.FileSize(src)
		if !ok {
			return session.Err()
		}
		size = s
	} else {
		fi, err := os.Stat(src)
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return fmt.Errorf("%s is a directory", src)
		}
		size = fi.Size()
	}

	var stages []xsftp.TransferStage
	var sum *xsftp.Checksum
	if *checksum {
		sum = xsftp.NewChecksum(sha256.New(), nil)
		stages = append(stages, sum)
	}
	t := &xsftp.Transfer{}
	if *showProgress {
		uiprogress.Start()
		defer uiprogress.Stop()
		var remaining atomic.Int64
		bar := uiprogress.AddBar(int(size)).AppendCompleted().PrependElapsed()
		bar.AppendFunc(func(*uiprogress.Bar) string {
			return "eta " + time.Duration(remaining.Load()).Round(time.Second).String()
		})
		t.OnProgress = func(n int64) { bar.Set(int(n)) }
		stages = append(stages, xsftp.NewProgress(size, time.Second, func(r time.Duration, percent float64, estimated time.Time, complete bool) {
			remaining.Store(int64(r))
		}))
	}
	session.SetTransferStages(stages...)
	defer session.SetTransferStages()

	var ok bool
	var err error
	if cmd == "get" {
		ok, err = session.GetFile(src, dst, t)
	} else {
		ok, err = session.PutFile(dst, src, t)
	}
	if err := check(ok, err)(session); err != nil {
		return err
	}
	if sum != nil {
		fmt.Printf("%x  %s\n", sum.Sum(), src)
	}
	return nil
}
