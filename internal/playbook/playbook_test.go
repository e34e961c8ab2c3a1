package playbook

import (
	"strings"
	"testing"
)

const samplePlaybook = `
- name: configure web tier
  hosts: web
  become: true
  become_user: root
  serial: "25%"
  max_fail_percentage: 10
  strategy: free
  vars:
    package_name: nginx
  tasks:
    - name: install package
      package:
        name: "{{ package_name }}"
        state: present
      register: install_result
      notify: restart service

    - name: loop over files
      copy:
        src: "{{ item }}"
        dest: /etc/app/
      loop:
        - a.conf
        - b.conf
      when:
        - install_result.changed

    - name: risky block
      block:
        - name: run migration
          command: /usr/local/bin/migrate
      rescue:
        - name: roll back
          command: /usr/local/bin/rollback
      always:
        - name: notify ops
          debug:
            msg: done

  handlers:
    - name: restart service
      service:
        name: nginx
        state: restarted
`

func TestLoadParsesPlayFields(t *testing.T) {
	pb, err := Load(strings.NewReader(samplePlaybook))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(pb.Plays) != 1 {
		t.Fatalf("expected 1 play, got %d", len(pb.Plays))
	}
	p := pb.Plays[0]
	if p.Pattern != "web" {
		t.Fatalf("unexpected pattern %q", p.Pattern)
	}
	if !p.BecomeDefault.Enabled || p.BecomeDefault.User != "root" || p.BecomeDefault.Method != "sudo" {
		t.Fatalf("unexpected become default: %+v", p.BecomeDefault)
	}
	if len(p.Serial) != 1 || p.Serial[0].Percent != 25 {
		t.Fatalf("unexpected serial: %+v", p.Serial)
	}
	if p.MaxFailPercentage != 10 {
		t.Fatalf("unexpected max_fail_percentage: %v", p.MaxFailPercentage)
	}
	if string(p.Strategy) != "free" {
		t.Fatalf("unexpected strategy: %v", p.Strategy)
	}
	if len(p.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(p.Tasks))
	}
}

func TestLoadModuleKeyAndParams(t *testing.T) {
	pb, err := Load(strings.NewReader(samplePlaybook))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	task := pb.Plays[0].Tasks[0]
	if task.Module != "package" {
		t.Fatalf("unexpected module: %q", task.Module)
	}
	if task.Params["name"] != "{{ package_name }}" {
		t.Fatalf("unexpected params: %+v", task.Params)
	}
	if task.Register != "install_result" {
		t.Fatalf("unexpected register: %q", task.Register)
	}
	if len(task.Notify) != 1 || task.Notify[0] != "restart service" {
		t.Fatalf("unexpected notify: %+v", task.Notify)
	}
}

func TestLoadLoopAndWhen(t *testing.T) {
	pb, err := Load(strings.NewReader(samplePlaybook))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	task := pb.Plays[0].Tasks[1]
	if task.Loop == nil || task.Loop.Kind != "list" || len(task.Loop.List) != 2 {
		t.Fatalf("unexpected loop: %+v", task.Loop)
	}
	if len(task.When) != 1 || task.When[0] != "install_result.changed" {
		t.Fatalf("unexpected when: %+v", task.When)
	}
}

func TestLoadBlockRescueAlways(t *testing.T) {
	pb, err := Load(strings.NewReader(samplePlaybook))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	task := pb.Plays[0].Tasks[2]
	if task.Block == nil {
		t.Fatalf("expected a block task")
	}
	if len(task.Block.Block) != 1 || task.Block.Block[0].Module != "command" {
		t.Fatalf("unexpected block: %+v", task.Block.Block)
	}
	if len(task.Block.Rescue) != 1 || task.Block.Rescue[0].Name != "roll back" {
		t.Fatalf("unexpected rescue: %+v", task.Block.Rescue)
	}
	if len(task.Block.Always) != 1 || task.Block.Always[0].Module != "debug" {
		t.Fatalf("unexpected always: %+v", task.Block.Always)
	}
}

func TestLoadHandlers(t *testing.T) {
	pb, err := Load(strings.NewReader(samplePlaybook))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	handlers := pb.Plays[0].Handlers
	if len(handlers) != 1 || handlers[0].Task.Name != "restart service" {
		t.Fatalf("unexpected handlers: %+v", handlers)
	}
	if handlers[0].Task.Module != "service" {
		t.Fatalf("unexpected handler module: %q", handlers[0].Task.Module)
	}
}

const taskVarsPlaybook = `
- name: task scoped vars
  hosts: all
  tasks:
    - name: render with a task-local var
      vars:
        greeting: hi
      debug:
        msg: "{{ greeting }}"
`

func TestLoadParsesTaskVars(t *testing.T) {
	pb, err := Load(strings.NewReader(taskVarsPlaybook))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	task := pb.Plays[0].Tasks[0]
	if task.Vars["greeting"] != "hi" {
		t.Fatalf("unexpected task vars: %+v", task.Vars)
	}
}

func TestLoadRejectsTaskWithTwoModuleKeys(t *testing.T) {
	const bad = `
- name: broken play
  hosts: all
  tasks:
    - name: ambiguous
      command: echo hi
      shell: echo hi
`
	if _, err := Load(strings.NewReader(bad)); err == nil {
		t.Fatal("expected error for a task with two module keys")
	}
}
