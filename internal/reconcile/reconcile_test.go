package reconcile_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"fbicheck/internal/events"
	"fbicheck/internal/reconcile"
	"fbicheck/internal/services"
	"fbicheck/internal/testsupport"
	"fbicheck/internal/walker"
)

func setup(t *testing.T, entries ...string) (string, *testsupport.Index, *testsupport.Publisher, *reconcile.Reconciler) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "a")
	testsupport.BuildTree(t, root, append([]string{"./"}, entries...)...)
	idx := testsupport.NewIndex()
	idx.AddDirs(root)
	pub := testsupport.NewPublisher()
	return root, idx, pub, reconcile.New(idx, pub)
}

func TestReconcileDepositsUnindexedFile(t *testing.T) {
	dir, idx, pub, rec := setup(t, "x.nc", "y.nc")
	idx.AddFiles(filepath.Join(dir, "x.nc"))

	summary, err := rec.Reconcile(context.Background(), dir)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	got := pub.ByAction()
	if want := []string{filepath.Join(dir, "y.nc")}; !slices.Equal(got[events.ActionDeposit], want) {
		t.Fatalf("DEPOSIT = %v, want %v", got[events.ActionDeposit], want)
	}
	if len(got[events.ActionRemove]) != 0 {
		t.Fatalf("expected no REMOVE, got %v", got[events.ActionRemove])
	}
	if summary.Total() != 1 || summary.Counts[events.ActionDeposit] != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestReconcileTapeSentinelSuppressesRemoves(t *testing.T) {
	dir, idx, pub, rec := setup(t, reconcile.TapeSentinel, "x.nc")
	idx.AddFiles(filepath.Join(dir, "x.nc"), filepath.Join(dir, "y.nc"))

	if _, err := rec.Reconcile(context.Background(), dir); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	got := pub.ByAction()
	if len(got[events.ActionRemove]) != 0 {
		t.Fatalf("expected no REMOVE with tape sentinel, got %v", got[events.ActionRemove])
	}
	if len(got[events.ActionDeposit]) != 0 {
		t.Fatalf("expected no DEPOSIT, got %v", got[events.ActionDeposit])
	}
}

func TestReconcileRemovesWithoutSentinel(t *testing.T) {
	dir, idx, pub, rec := setup(t, "x.nc")
	idx.AddFiles(filepath.Join(dir, "x.nc"), filepath.Join(dir, "y.nc"))

	if _, err := rec.Reconcile(context.Background(), dir); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := pub.ByAction()[events.ActionRemove]; !slices.Equal(got, []string{filepath.Join(dir, "y.nc")}) {
		t.Fatalf("REMOVE = %v", got)
	}
}

func TestReconcileReadmeAlwaysEmitted(t *testing.T) {
	dir, idx, pub, rec := setup(t, reconcile.NoticeFile)
	readme := filepath.Join(dir, reconcile.NoticeFile)
	idx.AddFiles(readme)

	for range 2 {
		if _, err := rec.Reconcile(context.Background(), dir); err != nil {
			t.Fatalf("Reconcile: %v", err)
		}
	}
	got := pub.ByAction()
	if !slices.Equal(got[events.ActionReadme], []string{readme, readme}) {
		t.Fatalf("expected one README per pass, got %v", got[events.ActionReadme])
	}
	if len(got[events.ActionDeposit]) != 0 {
		t.Fatalf("indexed README must not be deposited, got %v", got[events.ActionDeposit])
	}
}

func TestReconcileDirectories(t *testing.T) {
	dir, idx, pub, rec := setup(t, "new/", "kept/")
	idx.AddDirs(
		filepath.Join(dir, "kept"),
		filepath.Join(dir, "gone"),
		dir+"sibling", // prefix match outside dir
	)

	if _, err := rec.Reconcile(context.Background(), dir); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	got := pub.ByAction()
	if !slices.Equal(got[events.ActionMkdir], []string{filepath.Join(dir, "new")}) {
		t.Fatalf("MKDIR = %v", got[events.ActionMkdir])
	}
	if !slices.Equal(got[events.ActionRmdir], []string{filepath.Join(dir, "gone")}) {
		t.Fatalf("RMDIR = %v", got[events.ActionRmdir])
	}
}

func TestReconcileAnnouncesUnindexedDirectoryItself(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a")
	testsupport.BuildTree(t, root, "./")
	pub := testsupport.NewPublisher()
	rec := reconcile.New(testsupport.NewIndex(), pub)

	if _, err := rec.Reconcile(context.Background(), root); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := pub.ByAction()[events.ActionMkdir]; !slices.Equal(got, []string{root}) {
		t.Fatalf("MKDIR = %v", got)
	}
}

func TestReconcileSymlinkAddsAreSymlinkEvents(t *testing.T) {
	dir, _, pub, rec := setup(t, "real.nc", "realdir/")
	testsupport.Symlink(t, filepath.Join(dir, "real.nc"), filepath.Join(dir, "link.nc"))
	testsupport.Symlink(t, filepath.Join(dir, "realdir"), filepath.Join(dir, "linkdir"))

	if _, err := rec.Reconcile(context.Background(), dir); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	got := pub.ByAction()
	want := []string{filepath.Join(dir, "link.nc"), filepath.Join(dir, "linkdir")}
	if !slices.Equal(got[events.ActionSymlink], want) {
		t.Fatalf("SYMLINK = %v, want %v", got[events.ActionSymlink], want)
	}
	if !slices.Equal(got[events.ActionDeposit], []string{filepath.Join(dir, "real.nc")}) {
		t.Fatalf("DEPOSIT = %v", got[events.ActionDeposit])
	}
	if !slices.Equal(got[events.ActionMkdir], []string{filepath.Join(dir, "realdir")}) {
		t.Fatalf("MKDIR = %v", got[events.ActionMkdir])
	}
}

func TestReconcileRemovesIndexedBrokenLink(t *testing.T) {
	dir, idx, pub, rec := setup(t, "real.nc")
	broken := filepath.Join(dir, "broken.nc")
	testsupport.Symlink(t, filepath.Join(dir, "gone.nc"), broken)
	idx.AddFiles(filepath.Join(dir, "real.nc"), broken)

	if _, err := rec.Reconcile(context.Background(), dir); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	got := pub.ByAction()
	if len(got[events.ActionSymlink]) != 0 {
		t.Fatalf("expected no SYMLINK for a dangling link, got %v", got[events.ActionSymlink])
	}
	if !slices.Equal(got[events.ActionRemove], []string{broken}) {
		t.Fatalf("REMOVE = %v, want [%s]", got[events.ActionRemove], broken)
	}
}

func TestReconcileUnlistedDirectoryEmitsNothing(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a")
	testsupport.BuildTree(t, root, "x.nc", "sub/")
	idx := testsupport.NewIndex()
	idx.AddDirs(root, filepath.Join(root, "sub"))
	idx.AddFiles(filepath.Join(root, "x.nc"), filepath.Join(root, "y.nc"))
	pub := testsupport.NewPublisher()
	rec := reconcile.New(idx, pub, reconcile.WithWalkerOptions(walker.WithExclude(root)))

	summary, err := rec.Reconcile(context.Background(), root)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !summary.Unlisted {
		t.Fatalf("expected excluded directory to be reported unlisted, got %+v", summary)
	}
	if evs := pub.Events(); len(evs) != 0 {
		t.Fatalf("expected no events for an unlisted directory, got %v", evs)
	}
	if idx.Calls() != 0 {
		t.Fatalf("expected no index queries, got %d", idx.Calls())
	}
}

func TestReconcileEmissionOrder(t *testing.T) {
	dir, idx, pub, rec := setup(t, "b.nc", "a.nc", "sub/", reconcile.NoticeFile)
	idx.AddFiles(filepath.Join(dir, "old.nc"), filepath.Join(dir, reconcile.NoticeFile))
	idx.AddDirs(filepath.Join(dir, "olddir"))

	if _, err := rec.Reconcile(context.Background(), dir); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	var actions []events.Action
	var paths []string
	for _, ev := range pub.Events() {
		actions = append(actions, ev.Action)
		paths = append(paths, filepath.Base(ev.Path))
	}
	wantActions := []events.Action{
		events.ActionDeposit, events.ActionDeposit,
		events.ActionRemove,
		events.ActionMkdir,
		events.ActionRmdir,
		events.ActionReadme,
	}
	if !slices.Equal(actions, wantActions) {
		t.Fatalf("actions = %v, want %v", actions, wantActions)
	}
	if paths[0] != "a.nc" || paths[1] != "b.nc" {
		t.Fatalf("expected sorted deposits, got %v", paths)
	}
}

func TestReconcileNormalizesUnicode(t *testing.T) {
	// Precomposed on disk, decomposed in the index.
	dir, idx, pub, rec := setup(t, "caf\u00e9.nc")
	idx.AddFiles(filepath.Join(dir, "cafe\u0301.nc"))

	if _, err := rec.Reconcile(context.Background(), dir); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got := pub.Events(); len(got) != 0 {
		t.Fatalf("expected equivalent spellings to match, got %v", got)
	}
}

func TestReconcileIndexFailure(t *testing.T) {
	dir, idx, pub, rec := setup(t, "x.nc")
	idx.SetError(errors.New("connection refused"))

	_, err := rec.Reconcile(context.Background(), dir)
	if !errors.Is(err, services.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	if len(pub.Events()) != 0 {
		t.Fatal("nothing should be published when the index fails")
	}
}

func TestReconcilePublisherFailureKeepsMarker(t *testing.T) {
	dir, _, pub, rec := setup(t, "x.nc")
	pub.FailUntilReconnect()

	_, err := rec.Reconcile(context.Background(), dir)
	if !errors.Is(err, services.ErrTransientBroker) {
		t.Fatalf("expected ErrTransientBroker, got %v", err)
	}
	if services.Classify(err) != services.DispositionReconnect {
		t.Fatalf("expected reconnect disposition, got %s", services.Classify(err))
	}
}

func TestReconcileRejectsBadPath(t *testing.T) {
	rec := reconcile.New(testsupport.NewIndex(), testsupport.NewPublisher())
	_, err := rec.Reconcile(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, services.ErrPath) {
		t.Fatalf("expected ErrPath, got %v", err)
	}
}
