package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/bondmint/bondmint/mintrpc"
)

// noPrivsID is a user and group id we promise will never hold privileges
// for anything. Children pass through it as their primary group so that
// no transient elevation survives into the child identity.
const noPrivsID = 999999

// Base identifiers for the sequentially assigned per-process uids and
// per-resource gids.
const (
	baseUID = 1000000000
	baseGID = 2000000000
)

// svcProcess is one supervised principal: a service from the service
// table plus the resources its credential set may reach.
type svcProcess struct {
	name string

	// rpcResource is the socket directory this process serves, if any.
	rpcResource *svcResource

	// access lists the resources whose gids the process receives as
	// supplementary groups.
	access []*svcResource

	uid    uint32
	groups []uint32
}

// svcResource is one access-controlled directory: a data directory or an
// RPC socket directory. Access is granted purely through directory
// traversal: members of the resource group may descend, everyone else is
// stopped at the directory.
type svcResource struct {
	path  string
	owner *svcProcess

	uid uint32
	gid uint32
}

// supervisor owns the process and resource tables and the running
// children.
type supervisor struct {
	cfg *config

	processes []*svcProcess
	resources []*svcResource

	children []*exec.Cmd
}

// newSupervisor declares the full process/resource topology. Declaration
// order is spawn order and must follow RPC dependencies.
func newSupervisor(cfg *config) *supervisor {
	s := &supervisor{cfg: cfg}

	// Data resources first, so grants below can reference them.
	dataRes := make(map[string]*svcResource)
	for _, name := range []string{
		resSellerDatabase, resRedeemerDatabase,
		resSigningPrivKey, resSigningPubKey, resOAEPKey,
		resMasterPubKey, resMasterPrivKey,
		resDispenserAddress, resDispenserPrivKey, resMixinAddress,
	} {
		dataRes[name] = s.addResource(
			filepath.Join(cfg.DataDir, name), nil,
		)
	}

	sellerDB := s.addRPCProcess(svcSellerDB)
	sign := s.addRPCProcess(svcSign)
	check := s.addRPCProcess(svcCheck)
	genQuote := s.addRPCProcess(svcGenQuote)
	issue := s.addRPCProcess(svcIssueProtobond)
	sellerFE := s.addProcess(svcSeller)
	redeemerDB := s.addRPCProcess(svcRedeemerDB)
	bondRedeemer := s.addRPCProcess(svcBondRedeemer)
	redeemerFE := s.addProcess(svcRedeemer)
	coll := s.addProcess(svcCollector)
	disp := s.addProcess(svcDispenser)

	// The database services own their data directories; sqlite needs
	// write access to the directory itself for its journal files.
	dataRes[resSellerDatabase].owner = sellerDB
	dataRes[resRedeemerDatabase].owner = redeemerDB

	// Long-term secrets: exactly one reader each.
	grant(sign, dataRes[resSigningPrivKey])
	grant(coll, dataRes[resMasterPrivKey])
	grant(coll, dataRes[resMixinAddress])
	grant(disp, dataRes[resDispenserPrivKey])

	// Public key material.
	grant(genQuote, dataRes[resMasterPubKey])
	grant(bondRedeemer, dataRes[resSigningPubKey])
	grant(bondRedeemer, dataRes[resOAEPKey])

	// RPC reachability, mirroring the access matrix.
	grantRPC(sellerFE, genQuote)
	grantRPC(sellerFE, issue)
	grantRPC(genQuote, sellerDB)
	grantRPC(issue, sellerDB)
	grantRPC(issue, check)
	grantRPC(issue, sign)
	grantRPC(check, sellerDB)
	grantRPC(redeemerFE, bondRedeemer)
	grantRPC(bondRedeemer, redeemerDB)
	grantRPC(disp, redeemerDB)
	grantRPC(coll, sellerDB)
	grantRPC(coll, check)

	s.computeTables()

	return s
}

// addProcess declares a supervised process.
func (s *supervisor) addProcess(name string) *svcProcess {
	p := &svcProcess{name: name}
	s.processes = append(s.processes, p)
	return p
}

// addRPCProcess declares a supervised RPC service along with its socket
// directory resource.
func (s *supervisor) addRPCProcess(name string) *svcProcess {
	p := s.addProcess(name)
	p.rpcResource = s.addResource(
		filepath.Join(s.cfg.RPCDir, name), p,
	)
	return p
}

// addResource declares an access-controlled directory.
func (s *supervisor) addResource(path string, owner *svcProcess) *svcResource {
	r := &svcResource{path: path, owner: owner}
	s.resources = append(s.resources, r)
	return r
}

// grant lets a process traverse into a resource directory.
func grant(p *svcProcess, r *svcResource) {
	p.access = append(p.access, r)
}

// grantRPC lets caller reach server's RPC socket.
func grantRPC(caller, server *svcProcess) {
	grant(caller, server.rpcResource)
}

// computeTables assigns sequential uids to processes and gids to
// resources, then derives resource ownership and per-process group sets.
func (s *supervisor) computeTables() {
	uid := uint32(baseUID)
	for _, p := range s.processes {
		uid++
		p.uid = uid
	}

	gid := uint32(baseGID)
	for _, r := range s.resources {
		gid++
		r.gid = gid

		if r.owner != nil {
			r.uid = r.owner.uid
		}
	}

	for _, p := range s.processes {
		for _, r := range p.access {
			p.groups = append(p.groups, r.gid)
		}
		if p.rpcResource != nil {
			p.groups = append(p.groups, p.rpcResource.gid)
		}
	}
}

// run sets up the resource directories, spawns every process in order and
// supervises them until an interrupt arrives.
func (s *supervisor) run() error {
	bmntLog.Debugf("Process/resource tables: %v",
		newLogClosure(func() string { return spew.Sdump(s.processes) }))

	if err := s.prepareResources(); err != nil {
		return err
	}

	for _, p := range s.processes {
		if err := s.spawn(p); err != nil {
			s.killAll()
			return err
		}
	}

	bmntLog.Infof("All %d services running", len(s.processes))

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	bmntLog.Infof("Shutting down services")
	s.killAll()

	return nil
}

// prepareResources creates every resource directory with the ownership
// and permission bits that make directory traversal the access control:
// 0750 directories, 0640 files, owner uid from the owning process, group
// gid from the resource.
func (s *supervisor) prepareResources() error {
	// The shared log directory is the one deliberately permissive
	// path: every child appends its own log file there.
	if err := os.MkdirAll(s.cfg.LogDir, 0777); err != nil {
		return err
	}
	if !s.cfg.NoPrivDrop {
		if err := os.Chmod(s.cfg.LogDir, 0777); err != nil {
			return err
		}
	}

	for _, r := range s.resources {
		if err := os.MkdirAll(r.path, 0750); err != nil {
			return err
		}

		// Remove any stale socket so the service can bind cleanly.
		sock := filepath.Join(r.path, mintrpc.SocketName)
		if err := os.Remove(sock); err != nil &&
			!os.IsNotExist(err) {

			return err
		}

		if s.cfg.NoPrivDrop {
			continue
		}

		entries, err := os.ReadDir(r.path)
		if err != nil {
			return err
		}

		paths := []string{r.path}
		for _, e := range entries {
			paths = append(paths, filepath.Join(r.path, e.Name()))
		}

		for _, path := range paths {
			err := os.Chown(path, int(r.uid), int(r.gid))
			if err != nil {
				return err
			}

			mode := os.FileMode(0640)
			if fi, err := os.Stat(path); err == nil && fi.IsDir() {
				mode = 0750
			}
			if err := os.Chmod(path, mode); err != nil {
				return err
			}
		}
	}

	return nil
}

// spawn re-execs this binary as the given service under its computed
// credentials, then waits for its RPC socket to appear before returning
// so that dependents never race their servers.
func (s *supervisor) spawn(p *svcProcess) error {
	self, err := os.Executable()
	if err != nil {
		return err
	}

	args := []string{
		"--service=" + p.name,
		"--datadir=" + s.cfg.DataDir,
		"--rpcdir=" + s.cfg.RPCDir,
		"--logdir=" + s.cfg.LogDir,
		"--debuglevel=" + s.cfg.DebugLevel,
		"--sellerlisten=" + s.cfg.SellerListen,
		"--redeemerlisten=" + s.cfg.RedeemerListen,
	}
	if s.cfg.ExplorerURL != "" {
		args = append(args, "--explorerurl="+s.cfg.ExplorerURL)
	}
	if s.cfg.TestNet3 {
		args = append(args, "--testnet")
	}
	if s.cfg.SimNet {
		args = append(args, "--simnet")
	}

	cmd := exec.Command(self, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if !s.cfg.NoPrivDrop {
		// The runtime applies the credential as setgroups, setgid,
		// setuid in that order: supplementary groups and the no-privs
		// primary group are in place before the child uid is
		// assumed, so the child never runs a single instruction with
		// an elevated identity it could keep.
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Credential: &syscall.Credential{
				Uid:    p.uid,
				Gid:    noPrivsID,
				Groups: p.groups,
			},
		}
	}

	bmntLog.Infof("Spawning %s (uid %d)", p.name, p.uid)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("unable to spawn %s: %v", p.name, err)
	}
	s.children = append(s.children, cmd)

	if p.rpcResource != nil {
		sock := filepath.Join(p.rpcResource.path, mintrpc.SocketName)
		for !fileExists(sock) {
			time.Sleep(100 * time.Millisecond)
		}
	}

	return nil
}

// killAll terminates every running child and reaps it.
func (s *supervisor) killAll() {
	for _, cmd := range s.children {
		if cmd.Process != nil {
			cmd.Process.Signal(syscall.SIGTERM)
		}
	}
	for _, cmd := range s.children {
		cmd.Wait()
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
