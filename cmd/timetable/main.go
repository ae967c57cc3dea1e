package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/example/timetable-console/internal/api"
	"github.com/example/timetable-console/internal/config"
	"github.com/example/timetable-console/internal/schedule"
	"github.com/example/timetable-console/internal/session"
	"github.com/example/timetable-console/internal/store"
	"github.com/example/timetable-console/internal/timetable"
	"github.com/example/timetable-console/internal/transport"
)

const usage = `Использование: timetable <команда> [аргументы]

Команды:
  login                       войти и сохранить сессию
  logout                      выйти и удалить сессию
  schedule <class|teacher|room> <id> [-date ГГГГ-ММ-ДД]
                              показать расписание на неделю
  find-room -date ГГГГ-ММ-ДД -lesson N [-capacity N] [-floor N]
            [-room-type ID] [-equipment ID:КОЛ,...]
                              подобрать свободный кабинет
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("команда не указана")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	st, err := store.Open(cfg.StateDSN, cfg.StateSecret)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.Error("failed to close state store", "error", cerr)
		}
	}()

	sess := session.New(func(snap session.Snapshot) error {
		return st.SaveSession(ctx, snap)
	}, logger)
	if snap, err := st.LoadSession(ctx); err == nil {
		sess.Restore(snap)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	notifier := newTerminalNotifier(os.Stdin, os.Stderr)
	tr, err := transport.New(cfg.APIBaseURL, sess, notifier,
		transport.WithLogger(logger),
		transport.WithExpiredHandler(func(context.Context) {
			fmt.Fprintln(os.Stderr, "Сессия завершена. Выполните timetable login.")
		}))
	if err != nil {
		return err
	}
	client := api.NewClient(tr)

	app := &application{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		session:  sess,
		client:   client,
		notifier: notifier,
	}

	switch args[0] {
	case "login":
		return app.login(ctx, args[1:])
	case "logout":
		return app.logout()
	case "schedule":
		return app.schedule(ctx, args[1:])
	case "find-room":
		return app.findRoom(ctx, args[1:])
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("неизвестная команда %q", args[0])
	}
}

type application struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store.Store
	session  *session.Session
	client   *api.Client
	notifier *terminalNotifier
}

func (a *application) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "имя пользователя")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	name := strings.TrimSpace(*username)
	if name == "" {
		fmt.Fprint(os.Stderr, "Имя пользователя: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		name = strings.TrimSpace(line)
	}
	if name == "" {
		return errors.New("имя пользователя не задано")
	}

	password, err := readPassword(reader)
	if err != nil {
		return err
	}

	pair, err := a.client.Login(ctx, name, password)
	if err != nil {
		return err
	}
	a.session.Login(name, pair.AccessToken, pair.RefreshToken)

	role := a.session.Role()
	if role == "" {
		role = "без роли"
	}
	fmt.Printf("Вход выполнен: %s (%s)\n", name, role)
	return nil
}

func readPassword(reader *bufio.Reader) (string, error) {
	fmt.Fprint(os.Stderr, "Пароль: ")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *application) logout() error {
	a.session.Clear()
	fmt.Println("Сессия удалена.")
	return nil
}

func (a *application) schedule(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("укажите поверхность (class|teacher|room) и идентификатор")
	}
	surface, idArg := args[0], args[1]
	fs := flag.NewFlagSet("schedule", flag.ContinueOnError)
	dateArg := fs.String("date", "", "любая дата недели, ГГГГ-ММ-ДД")
	if err := fs.Parse(args[2:]); err != nil {
		return err
	}

	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return fmt.Errorf("некорректный идентификатор %q", idArg)
	}

	var scope schedule.Scope
	switch surface {
	case "class":
		scope = schedule.ClassScope(id)
	case "teacher":
		scope = schedule.TeacherScope(id)
	case "room":
		scope = schedule.RoomScope(id)
	default:
		return fmt.Errorf("неизвестная поверхность %q", surface)
	}

	anchorKey := fmt.Sprintf("%s:%d", scope.Key, scope.ID)
	anchor, err := a.resolveAnchor(ctx, anchorKey, *dateArg)
	if err != nil {
		return err
	}

	view := schedule.NewView(a.client, scope, a.notifier,
		schedule.WithLogger(a.logger),
		schedule.WithEditGate(a.session.CanEdit))
	if err := view.Init(ctx, anchor); err != nil {
		return err
	}
	if err := a.store.SaveAnchor(ctx, anchorKey, view.Anchor()); err != nil {
		a.logger.Warn("failed to save anchor", "error", err)
	}

	renderGrid(os.Stdout, view)
	return nil
}

func (a *application) resolveAnchor(ctx context.Context, key, dateArg string) (time.Time, error) {
	if dateArg != "" {
		anchor, err := time.ParseInLocation("2006-01-02", dateArg, time.Local)
		if err != nil {
			return time.Time{}, fmt.Errorf("некорректная дата %q", dateArg)
		}
		return anchor, nil
	}
	if anchor, err := a.store.LoadAnchor(ctx, key); err == nil {
		return anchor, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return time.Time{}, err
	}
	return time.Now(), nil
}

func renderGrid(out io.Writer, view *schedule.View) {
	fmt.Fprintf(out, "Неделя %s\n\n", view.PeriodLabel())

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	labels := view.DayLabels()
	fmt.Fprint(w, "Урок")
	for _, label := range labels {
		fmt.Fprintf(w, "\t%s", label)
	}
	fmt.Fprintln(w)

	grid := view.Grid()
	for lesson := 0; lesson < timetable.Lessons; lesson++ {
		fmt.Fprintf(w, "%d %s", lesson+1, timetable.LessonTimes[lesson])
		for day := 0; day < timetable.Days; day++ {
			fmt.Fprintf(w, "\t%s", renderCell(grid[lesson][day]))
		}
		fmt.Fprintln(w)
	}
	_ = w.Flush()
}

func renderCell(evt *api.ScheduleEvent) string {
	if evt == nil {
		return "·"
	}
	title := evt.SubjectName
	if title == "" {
		title = evt.EventKindName
	}
	if evt.RoomNumber != "" {
		return fmt.Sprintf("%s (каб. %s)", title, evt.RoomNumber)
	}
	return title
}

func (a *application) findRoom(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("find-room", flag.ContinueOnError)
	dateArg := fs.String("date", "", "дата, ГГГГ-ММ-ДД")
	lesson := fs.Int("lesson", 0, "номер урока, 1..7")
	capacity := fs.Int("capacity", 0, "минимальная вместимость")
	floor := fs.Int("floor", 0, "этаж")
	roomType := fs.Int64("room-type", 0, "идентификатор типа кабинета")
	equipment := fs.String("equipment", "", "требования, ID:КОЛ через запятую")
	if err := fs.Parse(args); err != nil {
		return err
	}

	date, err := time.ParseInLocation("2006-01-02", *dateArg, time.Local)
	if err != nil {
		return fmt.Errorf("некорректная дата %q", *dateArg)
	}
	if *lesson < 1 || *lesson > timetable.Lessons {
		return fmt.Errorf("номер урока должен быть от 1 до %d", timetable.Lessons)
	}

	req := api.RoomSearchRequest{
		Date:         api.NewDate(date),
		LessonNumber: *lesson,
		MinCapacity:  *capacity,
		Floor:        *floor,
		RoomTypeID:   *roomType,
	}
	req.EquipmentRequirements, err = parseEquipment(*equipment)
	if err != nil {
		return err
	}

	room, found, err := a.client.FindRoom(ctx, req)
	if err != nil {
		return err
	}
	if !found {
		fmt.Println("Подходящий кабинет не найден")
		return nil
	}
	fmt.Printf("Кабинет %s (этаж %d)\n", room.Number, room.Floor)
	return nil
}

func parseEquipment(raw string) ([]api.EquipmentRequirement, error) {
	if raw == "" {
		return nil, nil
	}
	var reqs []api.EquipmentRequirement
	for _, part := range strings.Split(raw, ",") {
		typeRaw, qtyRaw, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("некорректное требование %q, ожидается ID:КОЛ", part)
		}
		typeID, err := strconv.ParseInt(typeRaw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("некорректный тип оборудования %q", typeRaw)
		}
		qty, err := strconv.Atoi(qtyRaw)
		if err != nil || qty < 1 {
			return nil, fmt.Errorf("некорректное количество %q", qtyRaw)
		}
		reqs = append(reqs, api.EquipmentRequirement{TypeID: typeID, RequiredQuantity: qty})
	}
	return reqs, nil
}

// terminalNotifier renders blocking, dismissible messages on the terminal the
// way the schedule surfaces expect: the message stays until acknowledged.
type terminalNotifier struct {
	in  io.Reader
	out io.Writer
}

func newTerminalNotifier(in io.Reader, out io.Writer) *terminalNotifier {
	return &terminalNotifier{in: in, out: out}
}

func (n *terminalNotifier) Notify(_ context.Context, title, message string) {
	fmt.Fprintf(n.out, "\n[%s] %s\n", title, message)
	if file, ok := n.in.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		fmt.Fprint(n.out, "Нажмите Enter, чтобы продолжить... ")
		_, _ = bufio.NewReader(n.in).ReadString('\n')
	}
}

func (n *terminalNotifier) Confirm(_ context.Context, message string) bool {
	fmt.Fprintf(n.out, "%s [y/N]: ", message)
	line, err := bufio.NewReader(n.in).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes" || answer == "д" || answer == "да"
}
