// prompt.go 提供 sitepush init 使用的交互式输入：文本、整数、密码（掩码显示）、确认、选择。
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

var ErrInvalidAnswer = errors.New("invalid answer")

// Prompter 从 reader 逐行读取回答，提示写到 writer；测试中用 strings.Reader 代替终端
type Prompter struct {
	reader  io.Reader
	writer  io.Writer
	scanner *bufio.Scanner
}

func NewPrompter(reader io.Reader, writer io.Writer) *Prompter {
	return &Prompter{
		reader:  reader,
		writer:  writer,
		scanner: bufio.NewScanner(reader),
	}
}

// readLine 读取一行并去掉首尾空白；输入结束视为空回答
func (p *Prompter) readLine() (string, error) {
	if p.scanner.Scan() {
		return strings.TrimSpace(p.scanner.Text()), nil
	}
	return "", p.scanner.Err()
}

// Prompt 显示 message 并读取一行
func (p *Prompter) Prompt(message string) (string, error) {
	fmt.Fprint(p.writer, message)
	return p.readLine()
}

// PromptWithDefault 提示形如 "message [default]: "，空回答取默认值
func (p *Prompter) PromptWithDefault(message, defaultValue string) (string, error) {
	answer, err := p.Prompt(fmt.Sprintf("%s [%s]: ", message, defaultValue))
	if err != nil || answer != "" {
		return answer, err
	}
	return defaultValue, nil
}

// PromptInt 与 PromptWithDefault 相同，回答必须是整数
func (p *Prompter) PromptInt(message string, defaultValue int) (int, error) {
	answer, err := p.PromptWithDefault(message, strconv.Itoa(defaultValue))
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(answer)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidAnswer, answer)
	}
	return n, nil
}

// PromptPassword 读取密码。reader 是终端时以原始模式读取，每个字符回显 *；
// 否则（管道、测试）按普通行读取。
func (p *Prompter) PromptPassword(message string) (string, error) {
	fmt.Fprint(p.writer, message)

	fd, ok := p.terminalFd()
	if !ok {
		return p.readLine()
	}
	password, err := readMasked(fd, p.reader, p.writer)
	fmt.Fprintln(p.writer)
	return string(password), err
}

func (p *Prompter) terminalFd() (int, bool) {
	f, ok := p.reader.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	return int(f.Fd()), true
}

// PromptConfirm 询问是/否，接受 y / yes / n / no，空回答取 defaultYes
func (p *Prompter) PromptConfirm(message string, defaultYes bool) (bool, error) {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}
	answer, err := p.Prompt(fmt.Sprintf("%s %s: ", message, hint))
	if err != nil {
		return false, err
	}

	switch strings.ToLower(answer) {
	case "":
		return defaultYes, nil
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidAnswer, answer)
	}
}

// PromptSelect 列出编号选项，返回所选下标（从 0 开始）。
// 回答可以是编号，也可以是选项本身（不区分大小写）；空回答选第一项。
func (p *Prompter) PromptSelect(message string, options []string) (int, error) {
	fmt.Fprintln(p.writer, message)
	for i, opt := range options {
		fmt.Fprintf(p.writer, "  %d) %s\n", i+1, opt)
	}

	answer, err := p.Prompt("选择 [1]: ")
	if err != nil || answer == "" {
		return 0, err
	}

	for i, opt := range options {
		if strings.EqualFold(answer, opt) {
			return i, nil
		}
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(options) {
		return 0, fmt.Errorf("%w: choose 1-%d, got %q", ErrInvalidAnswer, len(options), answer)
	}
	return n - 1, nil
}

// readMasked 在原始模式下逐字节读取密码，回显 *，处理退格和 Ctrl+C。
// 无法进入原始模式时退回 term.ReadPassword（不回显）。
func readMasked(fd int, in io.Reader, echo io.Writer) ([]byte, error) {
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return term.ReadPassword(fd)
	}
	defer term.Restore(fd, oldState)

	var password []byte
	buf := make([]byte, 1)
	for {
		if n, err := in.Read(buf); err != nil || n == 0 {
			return password, nil
		}

		switch ch := buf[0]; ch {
		case '\r', '\n':
			return password, nil
		case 3: // Ctrl+C
			return nil, errors.New("interrupted")
		case 8, 127: // Backspace / Delete
			if len(password) > 0 {
				password = password[:len(password)-1]
				fmt.Fprint(echo, "\b \b")
			}
		default:
			password = append(password, ch)
			fmt.Fprint(echo, "*")
		}
	}
}
