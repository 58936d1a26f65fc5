package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/wolfman30/vetclinic-booking/internal/app/bootstrap"
	"github.com/wolfman30/vetclinic-booking/internal/auth"
	"github.com/wolfman30/vetclinic-booking/internal/availability"
	"github.com/wolfman30/vetclinic-booking/internal/booking"
	appconfig "github.com/wolfman30/vetclinic-booking/internal/config"
	"github.com/wolfman30/vetclinic-booking/internal/models"
	"github.com/wolfman30/vetclinic-booking/internal/refdata"
	"github.com/wolfman30/vetclinic-booking/internal/stats"
	"github.com/wolfman30/vetclinic-booking/internal/transport"
	"github.com/wolfman30/vetclinic-booking/pkg/logging"
)

const usage = `usage: vetbook <command> [flags]

commands:
  login     sign in and keep the session
  logout    drop the session
  whoami    show the signed-in identity
  data      list clinics, customers and pets visible to you
  slots     show availability for -clinic on -date
  book      book -clinic -date -time for -pet
  edit      change an appointment (-id) you may see
  list      list your appointments
  cancel    cancel a scheduled appointment (-id)
  complete  mark a scheduled appointment (-id) completed
  stats     print an appointment and transport report
`

var errUsage = errors.New("unknown command")

type app struct {
	cfg    *appconfig.Config
	rt     *bootstrap.Runtime
	logger *logging.Logger
	in     io.Reader
	out    io.Writer

	reader *bufio.Reader
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	auths := auth.NewService(a.rt.API, a.rt.Store, a.logger)

	switch cmd {
	case "login":
		return a.login(ctx, auths, rest)
	case "logout":
		if err := auths.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "signed out")
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	}

	identity, err := a.ensureSession(ctx, auths)
	if err != nil {
		return err
	}
	switch cmd {
	case "whoami":
		return a.whoami(identity)
	case "data":
		return a.data(ctx, identity)
	case "slots":
		return a.slots(ctx, rest)
	case "book":
		return a.book(ctx, rest)
	case "edit":
		return a.edit(ctx, rest)
	case "list":
		return a.list(ctx)
	case "cancel", "complete":
		return a.changeStatus(ctx, cmd, rest)
	case "stats":
		return a.stats(ctx)
	}
	fmt.Fprint(a.out, usage)
	return fmt.Errorf("%w: %s", errUsage, cmd)
}

func (a *app) login(ctx context.Context, auths *auth.Service, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.out)
	username := fs.String("u", a.cfg.Username, "username")
	password := fs.String("p", a.cfg.Password, "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := auths.Login(ctx, *username, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "signed in as %s (%s)\n", id.DisplayName(), strings.Join(id.Roles, ", "))
	return nil
}

// ensureSession restores a persisted session, or signs in with the
// configured credentials when none is held.
func (a *app) ensureSession(ctx context.Context, auths *auth.Service) (models.Identity, error) {
	id, ok, err := auths.Restore(ctx)
	if err != nil {
		a.logger.Warn("session restore failed", "error", err)
	}
	if ok {
		return id, nil
	}
	if a.cfg.Username == "" {
		return models.Identity{}, errors.New("not signed in; run `vetbook login` or set VET_USERNAME and VET_PASSWORD")
	}
	return auths.Login(ctx, a.cfg.Username, a.cfg.Password)
}

func (a *app) whoami(id models.Identity) error {
	fmt.Fprintf(a.out, "%s\t%s\t%s\n", id.Document, id.DisplayName(), strings.Join(id.Roles, ","))
	if id.ClinicID != 0 {
		fmt.Fprintf(a.out, "clinic\t%d\n", id.ClinicID)
	}
	return nil
}

func (a *app) data(ctx context.Context, id models.Identity) error {
	d, err := refdata.NewLoader(a.rt.API, a.logger).Load(ctx, id)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, c := range d.Clinics {
		fmt.Fprintf(tw, "clinic\t%d\t%s\t%s\n", c.ID, c.Name, c.Address)
	}
	for _, c := range d.Customers {
		fmt.Fprintf(tw, "customer\t%s\t%s\t\n", c.Document, c.DisplayName())
	}
	for _, p := range d.Pets {
		fmt.Fprintf(tw, "pet\t%d\t%s\towner %s\n", p.ID, p.Name, p.OwnerDocument)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	a.printWarnings(d.Warnings)
	return nil
}

func (a *app) newForm() *booking.Form {
	return booking.NewForm(
		a.rt.API,
		availability.NewResolver(a.rt.API, a.logger),
		a.rt.Store,
		a.logger,
		booking.WithMetrics(a.rt.Metrics),
	)
}

func (a *app) slots(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("slots", flag.ContinueOnError)
	fs.SetOutput(a.out)
	clinic := fs.String("clinic", "", "clinic id")
	date := fs.String("date", "", "date, yyyy-mm-dd")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f := a.newForm()
	f.Reset()
	if err := f.ChooseClinic(ctx, *clinic); err != nil {
		return err
	}
	if err := f.ChooseDate(ctx, *date); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, s := range f.Slots() {
		state := "taken"
		if s.Available {
			state = "free"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Label(), state, s.PractitionerName)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	a.printWarnings(f.Warnings())
	return nil
}

func (a *app) book(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("book", flag.ContinueOnError)
	fs.SetOutput(a.out)
	clinic := fs.String("clinic", "", "clinic id")
	date := fs.String("date", "", "date, yyyy-mm-dd")
	at := fs.String("time", "", "slot start, hh:mm")
	pet := fs.String("pet", "", "pet id")
	customer := fs.String("customer", "", "customer document (staff only)")
	practitioner := fs.String("practitioner", "", "practitioner document (optional)")
	reason := fs.String("reason", "", "reason for the visit")
	notes := fs.String("notes", "", "notes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f := a.newForm()
	f.Reset()
	if err := f.ChooseClinic(ctx, *clinic); err != nil {
		return err
	}
	if *practitioner != "" {
		if err := f.SetPractitioner(*practitioner); err != nil {
			return err
		}
	}
	if err := f.ChooseDate(ctx, *date); err != nil {
		return err
	}
	if err := f.SelectSlot(*date + "T" + *at); err != nil {
		return fmt.Errorf("slot %s %s: %w", *date, *at, err)
	}
	if *customer != "" {
		if err := f.SetCustomer(*customer); err != nil {
			return err
		}
	}
	f.SetPet(*pet)
	f.SetReason(*reason)
	f.SetNotes(*notes)
	return a.submit(ctx, f)
}

func (a *app) edit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	fs.SetOutput(a.out)
	id := fs.Int64("id", 0, "appointment id")
	date := fs.String("date", "", "new date, yyyy-mm-dd")
	at := fs.String("time", "", "new slot start, hh:mm")
	reason := fs.String("reason", "", "new reason")
	notes := fs.String("notes", "", "new notes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f := a.newForm()
	f.Reset()
	appt, err := a.findAppointment(ctx, f, *id)
	if err != nil {
		return err
	}
	if err := f.Edit(ctx, appt); err != nil {
		return err
	}
	if *at != "" {
		day := *date
		if day == "" {
			day = f.Date()
		}
		if err := f.ChooseDate(ctx, day); err != nil {
			return err
		}
		if err := f.SelectSlot(day + "T" + *at); err != nil {
			return fmt.Errorf("slot %s %s: %w", day, *at, err)
		}
	}
	if *reason != "" {
		f.SetReason(*reason)
	}
	if *notes != "" {
		f.SetNotes(*notes)
	}
	return a.submit(ctx, f)
}

func (a *app) submit(ctx context.Context, f *booking.Form) error {
	saved, err := f.Submit(ctx)
	a.printWarnings(f.Warnings())
	if err != nil {
		var verr *booking.ValidationError
		if errors.As(err, &verr) {
			return errors.New(verr.Message)
		}
		return err
	}
	// backends may answer a write with an empty body
	if saved == nil {
		fmt.Fprintln(a.out, "appointment saved")
		return nil
	}
	fmt.Fprintf(a.out, "appointment %d saved for %s (%s)\n", saved.ID, saved.DateTime, saved.Status)
	return nil
}

func (a *app) list(ctx context.Context) error {
	f := a.newForm()
	if err := f.RefreshAppointments(ctx); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tSTATUS\tCLINIC\tPET\tPRACTITIONER")
	for _, appt := range f.Appointments() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			appt.ID, availability.TruncateToMinute(appt.DateTime), appt.Status,
			orRef(appt.ClinicName, appt.ClinicRef()), orRef(appt.PetName, appt.PetRef()),
			orRef(appt.PractitionerName, appt.PractitionerID))
	}
	return tw.Flush()
}

func orRef(name, ref string) string {
	if name != "" {
		return name
	}
	if ref == "" {
		return "-"
	}
	return ref
}

func (a *app) changeStatus(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(a.out)
	id := fs.Int64("id", 0, "appointment id")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f := a.newForm()
	appt, err := a.findAppointment(ctx, f, *id)
	if err != nil {
		return err
	}
	confirm := booking.ConfirmFunc(a.prompt)
	if *yes {
		confirm = func(context.Context, string) (bool, error) { return true, nil }
	}
	life := booking.NewLifecycle(a.rt.API, a.rt.Store, confirm, f, a.rt.Metrics, a.logger)
	if cmd == "cancel" {
		err = life.Cancel(ctx, appt)
	} else {
		err = life.Complete(ctx, appt)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "appointment %d updated\n", appt.ID)
	return nil
}

func (a *app) findAppointment(ctx context.Context, f *booking.Form, id int64) (models.Appointment, error) {
	if id <= 0 {
		return models.Appointment{}, errors.New("-id is required")
	}
	if err := f.RefreshAppointments(ctx); err != nil {
		return models.Appointment{}, err
	}
	for _, appt := range f.Appointments() {
		if appt.ID == id {
			return appt, nil
		}
	}
	return models.Appointment{}, fmt.Errorf("appointment %d not found", id)
}

// prompt asks a yes/no question on the terminal. Anything but an explicit
// yes declines.
func (a *app) prompt(_ context.Context, question string) (bool, error) {
	if a.reader == nil {
		a.reader = bufio.NewReader(a.in)
	}
	fmt.Fprintf(a.out, "%s [y/N] ", question)
	line, err := a.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "s", "si", "sí":
		return true, nil
	}
	return false, nil
}

func (a *app) stats(ctx context.Context) error {
	report, err := stats.NewService(a.rt.API, a.rt.Store, a.rt.Registry, a.logger).Report(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func (a *app) printWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Fprintln(a.out, "warning:", w)
	}
}

// exitMessage turns err into the line shown to the user, preferring the
// backend's own message.
func exitMessage(err error) string {
	if errors.Is(err, transport.ErrDeactivated) || errors.Is(err, transport.ErrUnauthorized) {
		return transport.ServerMessage(err, "your session has ended; sign in again")
	}
	var serr *booking.SubmissionError
	if errors.As(err, &serr) {
		return serr.Message
	}
	return err.Error()
}
