package permission

import "testing"

func TestGitResetIsNotDangerous(t *testing.T) {
	if CommandMightBeDangerous([]string{"git", "reset"}) {
		t.Fatal("git reset should not be dangerous")
	}
}

func TestBashGitResetHardIsNotDangerous(t *testing.T) {
	if CommandMightBeDangerous([]string{"bash", "-lc", "git reset --hard"}) {
		t.Fatal("git reset --hard via bash -lc should not be dangerous")
	}
}

func TestSudoGitResetIsNotDangerous(t *testing.T) {
	if CommandMightBeDangerous([]string{"sudo", "git", "reset", "--hard"}) {
		t.Fatal("sudo git reset --hard should not be dangerous")
	}
}

func TestGitPushForceIsNotDangerous(t *testing.T) {
	if CommandMightBeDangerous([]string{"git", "push", "--force", "origin", "main"}) {
		t.Fatal("git push --force should not be dangerous")
	}
}

func TestRmRfIsDangerous(t *testing.T) {
	if !CommandMightBeDangerous([]string{"rm", "-rf", "/"}) {
		t.Fatal("rm -rf should be dangerous")
	}
}

func TestRmFIsDangerous(t *testing.T) {
	if !CommandMightBeDangerous([]string{"rm", "-f", "/"}) {
		t.Fatal("rm -f should be dangerous")
	}
}

func TestSudoRmRfIsDangerous(t *testing.T) {
	if !CommandMightBeDangerous([]string{"sudo", "rm", "-rf", "/"}) {
		t.Fatal("sudo rm -rf should be dangerous")
	}
}

func TestBashScriptedRmRfIsDangerous(t *testing.T) {
	if !CommandMightBeDangerous([]string{"bash", "-lc", "cd /tmp && rm -rf build"}) {
		t.Fatal("rm -rf nested in a bash -lc script should be dangerous")
	}
}

func TestBashScriptedGitStatusIsNotDangerous(t *testing.T) {
	if CommandMightBeDangerous([]string{"bash", "-lc", "git status"}) {
		t.Fatal("git status via bash -lc should not be dangerous")
	}
}

func TestPlainCommandWithoutShellWrapperIsUnaffected(t *testing.T) {
	if CommandMightBeDangerous([]string{"ls", "-la"}) {
		t.Fatal("ls -la should not be dangerous")
	}
}
