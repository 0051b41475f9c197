package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"classroll/internal/marking"
)

const helpText = `commands:
  list [term]          show students, optionally filtered by name or admission number
  set <id> <status>    present | absent | late | excused
  note <id> <text>     set remarks (an unmarked student becomes present)
  all present|absent   overwrite every student
  stats                show counts
  submit               send all marks
  quit                 leave without submitting
`

// shell is a line-oriented front end over one marking session.
type shell struct {
	sess *marking.Session
	out  io.Writer
}

// run reads commands until quit, EOF or a successful submit.
func (sh *shell) run(ctx context.Context, in io.Reader) error {
	sh.header()
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(sh.out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(sh.out)
			return sc.Err()
		}
		done, err := sh.exec(ctx, sc.Text())
		if err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
		if done {
			return nil
		}
	}
}

func (sh *shell) header() {
	info := sh.sess.Roster().Session
	fmt.Fprintf(sh.out, "%s %s  %s %s  room %s\n", info.CourseCode, info.CourseTitle, info.SessionDate, info.StartTime, info.Room)
	sh.stats()
}

// exec runs one command line and reports whether the shell should exit.
func (sh *shell) exec(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	args := fields[1:]
	switch strings.ToLower(fields[0]) {
	case "help", "?":
		fmt.Fprint(sh.out, helpText)
	case "list", "ls":
		sh.list(strings.Join(args, " "))
	case "set":
		if len(args) != 2 {
			return false, errors.New("usage: set <id> <status>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return false, err
		}
		status, err := marking.ParseStatus(args[1])
		if err != nil || status == marking.StatusUnset {
			return false, fmt.Errorf("unknown status %q", args[1])
		}
		return false, sh.sess.SetStatus(id, status)
	case "note":
		if len(args) < 1 {
			return false, errors.New("usage: note <id> <text>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return false, err
		}
		return false, sh.sess.SetRemarks(id, afterFields(line, 2))
	case "all":
		if len(args) != 1 {
			return false, errors.New("usage: all present|absent")
		}
		switch strings.ToLower(args[0]) {
		case "present":
			return false, sh.sess.MarkAllPresent()
		case "absent":
			return false, sh.sess.MarkAllAbsent()
		}
		return false, errors.New("usage: all present|absent")
	case "stats":
		sh.stats()
	case "submit":
		if err := sh.sess.Submit(ctx); err != nil {
			if errors.Is(err, marking.ErrNothingMarked) {
				return false, errors.New("please mark attendance for at least one student")
			}
			return false, err
		}
		fmt.Fprintln(sh.out, "attendance submitted")
		return true, nil
	case "quit", "exit", "q":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	return false, nil
}

func (sh *shell) list(term string) {
	entries := sh.sess.Filter(term)
	if len(entries) == 0 {
		fmt.Fprintln(sh.out, "no students match")
		return
	}
	tw := tabwriter.NewWriter(sh.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tADMISSION\tNAME\tSTATUS\tREMARKS")
	for _, e := range entries {
		rec, ok := sh.sess.Mark(e.StudentID)
		status := "-"
		if ok {
			status = string(rec.Status)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s %s\t%s\t%s\n", e.StudentID, e.AdmissionNumber, e.FirstName, e.LastName, status, rec.Remarks)
	}
	_ = tw.Flush()
}

func (sh *shell) stats() {
	st := sh.sess.Statistics()
	fmt.Fprintf(sh.out, "present %d  absent %d  late %d  excused %d  unmarked %d  total %d\n",
		st.Present, st.Absent, st.Late, st.Excused, st.Unmarked(), st.Total)
}

// afterFields returns line with its first n space-separated fields removed.
func afterFields(line string, n int) string {
	rest := strings.TrimSpace(line)
	for i := 0; i < n; i++ {
		_, rest, _ = strings.Cut(rest, " ")
		rest = strings.TrimSpace(rest)
	}
	return rest
}

func parseID(v string) (int64, error) {
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid student id %q", v)
	}
	return id, nil
}
